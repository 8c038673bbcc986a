package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider resolves credentials from environment variables.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment variable-based provider.
func NewEnvProvider() *EnvProvider { return &EnvProvider{lookup: os.LookupEnv} }

func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the value of the named variable. Unset and empty
// variables both yield ErrSecretNotFound.
func (p *EnvProvider) Resolve(_ context.Context, envVar string) (*Secret, error) {
	if envVar == "" {
		return nil, fmt.Errorf("%w: empty environment variable name", ErrSecretNotFound)
	}
	value, _ := p.lookup(envVar)
	if value == "" {
		return nil, fmt.Errorf("%w: environment variable %q is not set or empty",
			ErrSecretNotFound, envVar)
	}
	return &Secret{
		Value:    value,
		Metadata: map[string]string{"source": "env", "variable": envVar},
	}, nil
}
