// Package credstore persists the GitHub access token obtained by the device
// flow.
//
// All backends share one contract: Read returns ErrNotFound when no
// credential is stored, and writing the empty string clears the credential.
package credstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when no credential is stored.
	ErrNotFound = errors.New("no credential stored")

	// ErrReadOnly is returned by Write on backends that cannot be written.
	ErrReadOnly = errors.New("credential storage is read-only")
)

// Store reads and writes a single credential.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, token string) error
}
