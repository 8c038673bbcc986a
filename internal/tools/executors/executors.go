// Package executors implements the tool logic run inside the secrets broker.
// Executors receive already-resolved secrets and must never place them in
// the returned content or error text.
package executors

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jkaninda/securetools/internal/tools"
)

// Executor runs one tool.
// A returned error is converted into a failure result by the broker.
type Executor interface {
	Execute(ctx context.Context, args map[string]any, secrets map[string]string) (tools.Result, error)
}

// Func adapts an ordinary function to the Executor interface.
type Func func(ctx context.Context, args map[string]any, secrets map[string]string) (tools.Result, error)

func (f Func) Execute(ctx context.Context, args map[string]any, secrets map[string]string) (tools.Result, error) {
	return f(ctx, args, secrets)
}

// Executor keys referenced from tools.yml.
const (
	KeyCurrentWeather  = "get_current_weather"
	KeyProtectedStatus = "get_protected_status"
	KeyListServices    = "list_available_services"
)

// Catalog maps executor keys to implementations.
type Catalog struct {
	executors map[string]Executor
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{executors: make(map[string]Executor)}
}

// Options configures the built-in executors.
type Options struct {
	Weather WeatherConfig
}

// DefaultCatalog returns the catalog of built-in executors.
func DefaultCatalog(opts Options, logger *slog.Logger) *Catalog {
	c := NewCatalog()
	c.Add(KeyCurrentWeather, NewWeather(opts.Weather, logger))
	c.Add(KeyProtectedStatus, Func(ProtectedStatus))
	c.Add(KeyListServices, Func(ListServices))
	return c
}

// Add registers an executor under key, replacing any previous one.
func (c *Catalog) Add(key string, e Executor) {
	c.executors[key] = e
}

// Get returns the executor for key.
func (c *Catalog) Get(key string) (Executor, bool) {
	e, ok := c.executors[key]
	return e, ok
}

// Keys returns the registered keys, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.executors))
	for k := range c.executors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stringArg returns args[key] as a string, or def when absent.
func stringArg(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
