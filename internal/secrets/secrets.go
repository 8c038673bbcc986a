// Package secrets describes where credentials live and how to read them.
// Values resolved here are consumed only by the broker; they must never be
// logged, serialized or returned to the model-facing side.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultField is the item field read when a reference does not name one.
const DefaultField = "password"

// URIScheme prefixes store URIs (op://store/item/field).
const URIScheme = "op"

// Secret holds resolved credential material.
// This type MUST NOT be serialized to JSON or included in model-facing output.
type Secret struct {
	Value    string            // The raw secret value.
	Metadata map[string]string // Backend-specific metadata; never contains the value.
}

// Reference identifies one credential by environment variable and/or by a
// (store, item, field) triple in the external secret store.
type Reference struct {
	EnvVar string `json:"env_var,omitempty" yaml:"env_var,omitempty"`
	Store  string `json:"store,omitempty" yaml:"store,omitempty"`
	Item   string `json:"item,omitempty" yaml:"item,omitempty"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty"` // Default: "password"
}

// FieldName returns the field, defaulting to DefaultField.
func (r Reference) FieldName() string {
	if r.Field == "" {
		return DefaultField
	}
	return r.Field
}

// HasEnvVar reports whether an environment variable source is configured.
func (r Reference) HasEnvVar() bool { return r.EnvVar != "" }

// HasStoreRef reports whether a store source is configured.
func (r Reference) HasStoreRef() bool { return r.Store != "" && r.Item != "" }

// URI returns the store URI. ok is false unless both store and item are set.
func (r Reference) URI() (uri string, ok bool) {
	if !r.HasStoreRef() {
		return "", false
	}
	return fmt.Sprintf("%s://%s/%s/%s", URIScheme, r.Store, r.Item, r.FieldName()), true
}

// Source names the reference for messages and logs: the environment
// variable if one is configured, else item/field.
func (r Reference) Source() string {
	if r.HasEnvVar() {
		return r.EnvVar
	}
	return r.Item + "/" + r.FieldName()
}

// StoreReader reads a single value from an external secret store.
// Implementations must be safe for concurrent use.
type StoreReader interface {
	// Read resolves a store URI (op://store/item/field).
	Read(ctx context.Context, uri string) (*Secret, error)

	// Name returns the backend identifier for logging (never includes secrets).
	Name() string
}

// Pinger is implemented by stores that can report their availability
// without reading a secret.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sentinel errors. Messages never include secret values or store output.
var (
	ErrSecretNotFound    = errors.New("secret not found")
	ErrNoSource          = errors.New("no secret source configured")
	ErrStoreExit         = errors.New("secret store CLI exited with an error")
	ErrStoreTimeout      = errors.New("secret store CLI timed out")
	ErrStoreNotInstalled = errors.New("secret store CLI not found")
)

// ParseURI splits op://store/item/field into its parts.
func ParseURI(uri string) (Reference, error) {
	rest, ok := strings.CutPrefix(uri, URIScheme+"://")
	if !ok {
		return Reference{}, fmt.Errorf("%w: unsupported reference scheme", ErrSecretNotFound)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Reference{}, fmt.Errorf("%w: reference must be %s://store/item/field", ErrSecretNotFound, URIScheme)
	}
	return Reference{Store: parts[0], Item: parts[1], Field: parts[2]}, nil
}
