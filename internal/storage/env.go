package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to items stored in environment variables.
// The variable name is the prefix followed by the upper-cased key, so with
// prefix "TOKENRELAY_STORE_" the key "tokens" is read from TOKENRELAY_STORE_TOKENS.
type EnvStore struct {
	prefix   string
	lookupFn func(string) (string, bool)
}

// Compile-time check to ensure EnvStore implements Storage
var _ Storage = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading variables with the given prefix.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix:   prefix,
		lookupFn: os.LookupEnv,
	}, nil
}

// VarName returns the environment variable consulted for key.
func (e *EnvStore) VarName(key string) string {
	return e.prefix + strings.ToUpper(key)
}

// GetItem returns the value of the environment variable for key.
// Unset or empty variables yield ErrNotFound.
func (e *EnvStore) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, ok := e.lookupFn(e.VarName(key))
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// SetItem is not supported for environment variables (they are read-only).
func (e *EnvStore) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.VarName(key), ErrReadOnly)
}
