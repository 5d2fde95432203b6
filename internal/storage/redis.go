package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps items in Redis so several processes can share credentials.
// Keys are namespaced with a prefix; entries never expire.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// Compile-time check to ensure RedisStore implements Storage
var _ Storage = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore on top of an externally owned client.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

// GetItem returns the value stored in Redis, or ErrNotFound.
func (r *RedisStore) GetItem(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", r.key(key), err)
	}
	return value, nil
}

// SetItem stores the value without expiry.
func (r *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key(key), err)
	}
	return nil
}
