package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringUser is the account name under which the credential is kept.
const DefaultKeyringUser = "github"

// KeyringStore keeps the credential in the operating system keyring.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check that KeyringStore implements Store.
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a store for the given keyring service name.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service, user: DefaultKeyringUser}
}

// Read implements Store.
func (s *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	if token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

// Write implements Store.
func (s *KeyringStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if token == "" {
		err := keyring.Delete(s.service, s.user)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("clearing keyring: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.service, s.user, token); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}
