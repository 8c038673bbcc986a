// Package broker is the trusted side of the tool boundary. It resolves
// credentials, runs executors and scrubs everything it returns, so callers
// only ever see sanitized tool results.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/tools"
	"github.com/jkaninda/securetools/internal/tools/executors"
)

// Resolution sources reported to the Recorder and in logs.
const (
	SourceEnv   = "env"
	SourceCache = "cache"
	SourceNone  = "none"
)

const envCachePrefix = "env:"

// Recorder receives secret resolution outcomes. Implementations must not
// need the value and never receive it.
type Recorder interface {
	RecordSecretResolution(source, outcome string)
}

// Config configures a Broker.
type Config struct {
	// RequireSecrets selects live mode: a secret that cannot be resolved
	// fails the call. In mock mode the field is left out instead.
	RequireSecrets bool

	// Store is the external secret store. Nil means env vars only.
	Store secrets.StoreReader

	// Env overrides the environment source. Nil means the process env.
	Env *secrets.EnvProvider

	Recorder Recorder
	Logger   *slog.Logger
}

type registration struct {
	executor executors.Executor
	refs     []secrets.Reference
}

// Broker maps tool names to executors and their secret references.
// Safe for concurrent use.
type Broker struct {
	requireSecrets bool
	store          secrets.StoreReader
	env            *secrets.EnvProvider
	recorder       Recorder
	logger         *slog.Logger

	mu    sync.RWMutex
	tools map[string]registration
	cache map[string]string // identity -> value; never logged
}

// New creates a Broker.
func New(cfg Config) *Broker {
	env := cfg.Env
	if env == nil {
		env = secrets.NewEnvProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		requireSecrets: cfg.RequireSecrets,
		store:          cfg.Store,
		env:            env,
		recorder:       cfg.Recorder,
		logger:         logger,
		tools:          make(map[string]registration),
		cache:          make(map[string]string),
	}
}

// RequireSecrets reports whether the broker runs in live mode.
func (b *Broker) RequireSecrets() bool { return b.requireSecrets }

// RegisterTool associates name with an executor and the secrets it needs,
// replacing any earlier registration.
func (b *Broker) RegisterTool(name string, exec executors.Executor, refs ...secrets.Reference) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools[name] = registration{
		executor: exec,
		refs:     append([]secrets.Reference(nil), refs...),
	}
}

// HasTool reports whether name is registered.
func (b *Broker) HasTool(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tools[name]
	return ok
}

// ToolNames returns the registered tool names, sorted.
func (b *Broker) ToolNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute resolves the tool's secrets, runs it and returns the scrubbed
// result. Failures are reported as unsuccessful results, never as errors.
func (b *Broker) Execute(ctx context.Context, call tools.Call) tools.Result {
	b.mu.RLock()
	reg, ok := b.tools[call.Name]
	b.mu.RUnlock()
	if !ok {
		return tools.Failure("Tool '%s' not registered with secrets broker", call.Name)
	}

	resolved, err := b.resolve(ctx, call.Name, reg.refs)
	if err != nil {
		return b.failure(reg, resolved, err)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	result, err := runExecutor(ctx, reg.executor, args, resolved)
	if err != nil {
		return b.failure(reg, resolved, &ToolExecutionError{Tool: call.Name, Err: err})
	}

	result.Content = Scrub(result.Content, values(resolved))
	return result
}

func runExecutor(ctx context.Context, exec executors.Executor, args map[string]any, resolved map[string]string) (res tools.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec.Execute(ctx, args, resolved)
}

// failure builds the error result. The message is scrubbed with the values
// resolved so far plus anything cached for the tool's references.
func (b *Broker) failure(reg registration, resolved map[string]string, err error) tools.Result {
	known := values(resolved)
	b.mu.RLock()
	for _, ref := range reg.refs {
		if ref.HasEnvVar() {
			if v, ok := b.cache[envCachePrefix+ref.EnvVar]; ok {
				known = append(known, v)
			}
		}
		if uri, ok := ref.URI(); ok {
			if v, ok := b.cache[uri]; ok {
				known = append(known, v)
			}
		}
	}
	b.mu.RUnlock()
	return tools.Failure("Tool execution failed: %s", Scrub(err.Error(), known))
}

// resolve builds the field -> value map for a tool. In live mode the first
// unavailable secret aborts; in mock mode it is skipped with a warning.
func (b *Broker) resolve(ctx context.Context, tool string, refs []secrets.Reference) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		value, source, err := b.ResolveReference(ctx, ref)
		if err != nil {
			b.record(source, "unavailable")
			if b.requireSecrets {
				b.logger.ErrorContext(ctx, "required secret unavailable",
					slog.String("tool", tool),
					slog.String("secret", ref.Source()),
				)
				return out, &SecretResolutionError{Source: ref.Source(), Err: err}
			}
			b.logger.WarnContext(ctx, "secret unavailable, continuing in mock mode",
				slog.String("tool", tool),
				slog.String("secret", ref.Source()),
				slog.String("error", err.Error()),
			)
			continue
		}
		b.record(source, "resolved")
		b.logger.DebugContext(ctx, "secret resolved",
			slog.String("tool", tool),
			slog.String("secret", ref.Source()),
			slog.String("source", source),
		)
		out[ref.FieldName()] = value
	}
	return out, nil
}

// ResolveReference resolves a single reference: a non-empty env var first,
// then the store (cached by URI). It returns the value and the source that
// supplied it. Only operator diagnostics call this directly; the value must
// not reach the model-facing side.
func (b *Broker) ResolveReference(ctx context.Context, ref secrets.Reference) (value, source string, err error) {
	if ref.HasEnvVar() {
		s, envErr := b.env.Resolve(ctx, ref.EnvVar)
		if envErr == nil {
			b.mu.Lock()
			b.cache[envCachePrefix+ref.EnvVar] = s.Value
			b.mu.Unlock()
			return s.Value, SourceEnv, nil
		}
		err = envErr
	}

	uri, ok := ref.URI()
	if !ok {
		if err == nil {
			err = secrets.ErrNoSource
		}
		return "", SourceNone, err
	}

	b.mu.RLock()
	cached, hit := b.cache[uri]
	b.mu.RUnlock()
	if hit {
		return cached, SourceCache, nil
	}

	if b.store == nil {
		return "", SourceNone, fmt.Errorf("%w: no secret store configured for %s", secrets.ErrNoSource, ref.Source())
	}
	s, readErr := b.store.Read(ctx, uri)
	if readErr != nil {
		return "", b.store.Name(), fmt.Errorf("reading %s from %s: %w", ref.Source(), b.store.Name(), readErr)
	}
	if s == nil || s.Value == "" {
		return "", b.store.Name(), fmt.Errorf("reading %s: %w", ref.Source(), secrets.ErrSecretNotFound)
	}

	b.mu.Lock()
	b.cache[uri] = s.Value
	b.mu.Unlock()
	return s.Value, b.store.Name(), nil
}

// ClearCache drops every cached value and returns how many were held.
func (b *Broker) ClearCache() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.cache)
	clear(b.cache)
	return n
}

// CacheSize returns the number of cached values.
func (b *Broker) CacheSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cache)
}

func (b *Broker) record(source, outcome string) {
	if b.recorder != nil {
		b.recorder.RecordSecretResolution(source, outcome)
	}
}

func values(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
