package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps items in a process-local map. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// Compile-time check to ensure MemoryStore implements Storage
var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]string{}}
}

// GetItem returns the stored value or ErrNotFound.
func (m *MemoryStore) GetItem(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// SetItem stores the value, overwriting any existing one.
func (m *MemoryStore) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]string{}
	}
	m.items[key] = value
	return nil
}
