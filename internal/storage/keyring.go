package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Every key becomes one keyring entry under the configured service.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements Storage
var _ Storage = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the given service identifier.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// GetItem returns the entry for key from the system keyring.
func (k *KeyringStore) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	return value, nil
}

// SetItem persists the entry to the system keyring, overwriting any existing value.
func (k *KeyringStore) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, key, value)
}
