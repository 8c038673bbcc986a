package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CompositeStore reads from the first store that can answer, e.g. Vault
// with the 1Password CLI as fallback.
type CompositeStore struct {
	readers []StoreReader
}

func NewCompositeStore(readers ...StoreReader) *CompositeStore {
	return &CompositeStore{readers: readers}
}

func (s *CompositeStore) Name() string {
	names := make([]string, len(s.readers))
	for i, r := range s.readers {
		names[i] = r.Name()
	}
	return "composite(" + strings.Join(names, ",") + ")"
}

// Read tries each reader in order. When all fail, the returned error
// wraps every failure.
func (s *CompositeStore) Read(ctx context.Context, uri string) (*Secret, error) {
	if len(s.readers) == 0 {
		return nil, fmt.Errorf("%w: no store reader configured", ErrNoSource)
	}
	errs := make([]error, 0, len(s.readers))
	for _, r := range s.readers {
		secret, err := r.Read(ctx, uri)
		if err == nil {
			return secret, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
	}
	return nil, errors.Join(errs...)
}

// Ping succeeds when at least one pingable reader is reachable. Readers
// without a Ping method count as reachable.
func (s *CompositeStore) Ping(ctx context.Context) error {
	var errs []error
	for _, r := range s.readers {
		p, ok := r.(Pinger)
		if !ok {
			return nil
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
