package credstore

import (
	"context"
	"os"
	"strings"
)

// EnvStore reads the credential from an environment variable. It cannot be
// written.
type EnvStore struct {
	name   string
	lookup func(string) (string, bool)
}

// Compile-time check that EnvStore implements Store.
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates a store reading the named variable.
func NewEnvStore(name string) *EnvStore {
	return &EnvStore{name: name, lookup: os.LookupEnv}
}

// Read implements Store.
func (s *EnvStore) Read(ctx context.Context) (string, error) {
	value, ok := s.lookup(s.name)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Write implements Store and always fails with ErrReadOnly.
func (s *EnvStore) Write(ctx context.Context, token string) error {
	return ErrReadOnly
}
