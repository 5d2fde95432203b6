package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by GetItem when no value is stored under the key.
	ErrNotFound = errors.New("item not found")

	// ErrReadOnly is returned by SetItem on backends that cannot be written.
	ErrReadOnly = errors.New("storage is read-only")
)

// Storage reads and writes string values by key.
type Storage interface {
	// GetItem returns the value stored under key, or ErrNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
}
