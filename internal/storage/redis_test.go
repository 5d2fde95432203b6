package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "miniredis start")

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	store, err := NewRedisStore(rdb, "tokenrelay:")
	require.NoError(t, err)
	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)

	_, err := store.GetItem(ctx, "tokens")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetItem(ctx, "tokens", `{"csrfToken":"c"}`))

	raw, err := mr.Get("tokenrelay:tokens")
	require.NoError(t, err)
	assert.Equal(t, `{"csrfToken":"c"}`, raw)
	assert.Zero(t, mr.TTL("tokenrelay:tokens"))

	value, err := store.GetItem(ctx, "tokens")
	require.NoError(t, err)
	assert.Equal(t, `{"csrfToken":"c"}`, value)
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)
	mr.SetError("LOADING redis is loading the dataset in memory")

	_, err := store.GetItem(ctx, "tokens")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStore_NilClient(t *testing.T) {
	_, err := NewRedisStore(nil, "")
	assert.Error(t, err)
}
