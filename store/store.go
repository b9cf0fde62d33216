package store

import (
	"context"
	"errors"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrNotFound is returned by a SecretStore when there's no data for an
	// identifier.
	ErrNotFound = errors.New("not found")
)

// SecretStore persists opaque secrets by identifier.  Writes are
// last-write-wins per identifier.  Implementations must be concurrently safe.
type SecretStore interface {
	// Get returns the data stored for id or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Put stores data for id, replacing any existing data.
	Put(ctx context.Context, data []byte, id string) error

	// Delete removes the data stored for id.  Deleting an id without data
	// isn't an error.
	Delete(ctx context.Context, id string) error
}
