package tokens

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/tokenrelay/internal/storage"
)

// countingStorage wraps a MemoryStore and counts backend calls.
type countingStorage struct {
	*storage.MemoryStore
	gets atomic.Int64
	sets atomic.Int64
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MemoryStore: storage.NewMemoryStore()}
}

func (c *countingStorage) GetItem(ctx context.Context, key string) (string, error) {
	c.gets.Add(1)
	return c.MemoryStore.GetItem(ctx, key)
}

func (c *countingStorage) SetItem(ctx context.Context, key, value string) error {
	c.sets.Add(1)
	return c.MemoryStore.SetItem(ctx, key, value)
}

type brokenStorage struct{}

func (brokenStorage) GetItem(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}

func (brokenStorage) SetItem(context.Context, string, string) error {
	return errors.New("backend down")
}

// gatedStorage blocks GetItem, or SetItem of one specific value, until released.
type gatedStorage struct {
	*storage.MemoryStore
	gateGet bool
	gateSet string

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStorage(t *testing.T, stored string) *gatedStorage {
	t.Helper()
	g := &gatedStorage{
		MemoryStore: storage.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	require.NoError(t, g.MemoryStore.SetItem(context.Background(), DefaultStorageKey, stored))
	return g
}

func (g *gatedStorage) wait() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

// GetItem reads before blocking, so the caller ends up holding the value
// that was stored when the read started.
func (g *gatedStorage) GetItem(ctx context.Context, key string) (string, error) {
	value, err := g.MemoryStore.GetItem(ctx, key)
	if g.gateGet {
		g.wait()
	}
	return value, err
}

func (g *gatedStorage) SetItem(ctx context.Context, key, value string) error {
	if g.gateSet != "" && value == g.gateSet {
		g.wait()
	}
	return g.MemoryStore.SetItem(ctx, key, value)
}

func storedBag(t *testing.T, backend storage.Storage, key string) Bag {
	t.Helper()
	raw, err := backend.GetItem(context.Background(), key)
	require.NoError(t, err)
	bag, err := ParseBag(raw)
	require.NoError(t, err)
	return bag
}

func TestStore_DualWriteKeepsUnrelatedKinds(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	store := NewStore(backend, "")

	store.Write(ctx, Bag{AccessToken: "x"})
	merged := store.Write(ctx, Bag{RefreshToken: "y"})
	store.Wait()

	want := Bag{AccessToken: "x", RefreshToken: "y"}
	assert.Equal(t, want, merged)
	assert.Equal(t, want, store.Read(ctx))
	assert.Equal(t, want, storedBag(t, backend, DefaultStorageKey))
}

func TestStore_WriteOverridesPerKind(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, "")

	store.Write(ctx, Bag{AccessToken: "old", CSRFToken: "c"})
	got := store.Write(ctx, Bag{AccessToken: "new"})

	assert.Equal(t, Bag{AccessToken: "new", CSRFToken: "c"}, got)
}

func TestStore_ReadFallsBackToStorage(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.SetItem(ctx, "tokens", `{"accessToken":"stale"}`))

	store := NewStore(backend, "tokens")
	assert.Equal(t, Bag{AccessToken: "stale"}, store.Read(ctx))

	// Read is a pure query: the cache stays empty
	assert.Empty(t, store.Snapshot())
}

func TestStore_ReadPrefersWarmCache(t *testing.T) {
	ctx := context.Background()
	backend := newCountingStorage()
	store := NewStore(backend, "")

	store.Write(ctx, Bag{AccessToken: "cached"})
	store.Wait()
	gets := backend.gets.Load()

	require.NoError(t, backend.MemoryStore.SetItem(ctx, DefaultStorageKey, `{"accessToken":"elsewhere"}`))
	assert.Equal(t, Bag{AccessToken: "cached"}, store.Read(ctx))
	assert.Equal(t, gets, backend.gets.Load(), "warm reads must not touch storage")
}

func TestStore_WriteMergesOverStoredTokens(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.SetItem(ctx, "tokens", `{"accessToken":"stored","refreshToken":"r"}`))

	store := NewStore(backend, "")
	got := store.Write(ctx, Bag{AccessToken: "fresh"})

	assert.Equal(t, Bag{AccessToken: "fresh", RefreshToken: "r"}, got)
}

func TestStore_MalformedStorage(t *testing.T) {
	ctx := context.Background()

	for _, raw := range []string{"not json", `["a"]`, `"string"`, ``} {
		backend := storage.NewMemoryStore()
		require.NoError(t, backend.SetItem(ctx, "tokens", raw))

		store := NewStore(backend, "")
		assert.Empty(t, store.Read(ctx), "raw %q", raw)
	}
}

func TestStore_BrokenStorage(t *testing.T) {
	ctx := context.Background()
	store := NewStore(brokenStorage{}, "")

	assert.Empty(t, store.Read(ctx))

	got := store.Write(ctx, Bag{AccessToken: "a"})
	store.Wait()
	assert.Equal(t, Bag{AccessToken: "a"}, got)
	assert.Equal(t, Bag{AccessToken: "a"}, store.Read(ctx), "cache survives persistence failures")
}

func TestStore_Seed(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.SetItem(ctx, "tokens", `{"accessToken":"stored","csrfToken":"c"}`))

	store := NewStore(backend, "")
	got := store.Seed(ctx, Bag{AccessToken: "initial", RefreshToken: ""})
	store.Wait()

	want := Bag{AccessToken: "initial", CSRFToken: "c"}
	assert.Equal(t, want, got)
	assert.Equal(t, want, storedBag(t, backend, "tokens"))
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	store := NewStore(backend, "")

	store.Write(ctx, Bag{AccessToken: "a"})
	require.NoError(t, store.Reset(ctx))
	store.Wait()

	assert.Empty(t, store.Read(ctx))
	assert.Empty(t, storedBag(t, backend, DefaultStorageKey))
}

func TestStore_PrimeDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	backend := newCountingStorage()
	store := NewStore(backend, "")

	store.Prime(Bag{RefreshToken: "r", CSRFToken: ""})
	store.Wait()

	assert.Equal(t, Bag{RefreshToken: "r"}, store.Read(ctx))
	assert.Zero(t, backend.sets.Load())
}

func TestStore_ConcurrentWritesConverge(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	store := NewStore(backend, "")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			if i%2 == 0 {
				store.Write(ctx, Bag{AccessToken: "a"})
			} else {
				store.Write(ctx, Bag{RefreshToken: "r"})
			}
		})
	}
	wg.Wait()
	store.Wait()

	want := Bag{AccessToken: "a", RefreshToken: "r"}
	assert.Equal(t, want, store.Read(ctx))
	assert.Equal(t, want, storedBag(t, backend, DefaultStorageKey), "latest snapshot must win in storage")
}

func TestStore_Defaults(t *testing.T) {
	store := NewStore(nil, "")
	assert.Equal(t, DefaultStorageKey, store.Key())
	assert.IsType(t, &storage.MemoryStore{}, store.Backend())
}

func TestStore_WriteDuringResetKeepsClearedTokensOut(t *testing.T) {
	ctx := context.Background()
	backend := newGatedStorage(t, `{"accessToken":"revoked"}`)
	backend.gateSet = "{}"
	store := NewStore(backend, "")

	resetErr := make(chan error, 1)
	go func() { resetErr <- store.Reset(ctx) }()
	<-backend.entered

	// Storage still holds the old value while the reset is being persisted
	assert.Empty(t, store.Read(ctx))
	assert.Equal(t, Bag{CSRFToken: "c"}, store.Write(ctx, Bag{CSRFToken: "c"}))

	close(backend.release)
	require.NoError(t, <-resetErr)
	store.Wait()

	assert.Equal(t, Bag{CSRFToken: "c"}, store.Read(ctx))
	assert.Equal(t, Bag{CSRFToken: "c"}, storedBag(t, backend, DefaultStorageKey))
}

func TestStore_ColdReadStartedBeforeResetIsDiscarded(t *testing.T) {
	ctx := context.Background()
	backend := newGatedStorage(t, `{"accessToken":"revoked"}`)
	backend.gateGet = true
	store := NewStore(backend, "")

	written := make(chan Bag, 1)
	go func() { written <- store.Write(ctx, Bag{CSRFToken: "c"}) }()
	<-backend.entered

	require.NoError(t, store.Reset(ctx))
	close(backend.release)

	assert.Equal(t, Bag{CSRFToken: "c"}, <-written)
	store.Wait()
	assert.Equal(t, Bag{CSRFToken: "c"}, storedBag(t, backend, DefaultStorageKey))
}

func TestStore_ReadOnlyStorageLogsOnce(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	backend, err := storage.NewEnvStore("TOKENRELAY_STORE_READONLY_TEST_")
	require.NoError(t, err)

	ctx := context.Background()
	store := NewStore(backend, "")
	store.Write(ctx, Bag{AccessToken: "a"})
	store.Write(ctx, Bag{RefreshToken: "r"})
	store.Wait()

	assert.Equal(t, Bag{AccessToken: "a", RefreshToken: "r"}, store.Read(ctx))
	assert.Equal(t, 1, strings.Count(logs.String(), "token storage is read-only"))
	assert.NotContains(t, logs.String(), "level=ERROR")
}
