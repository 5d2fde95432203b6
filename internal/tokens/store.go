package tokens

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/florianilch/tokenrelay/internal/storage"
)

// DefaultStorageKey is the durable key the serialized Bag lives under.
const DefaultStorageKey = "tokens"

// Store reconciles the in-memory Bag with a durable storage backend.
//
// Reads serve the cache while it holds anything and fall back to storage
// otherwise, without filling the cache. Writes merge into the cache under a
// single lock and persist the merged Bag in the background; an older snapshot
// never overwrites a newer one. Safe for concurrent use.
type Store struct {
	backend storage.Storage
	key     string

	mu    sync.Mutex
	cache Bag
	seq   uint64
	// epoch changes on every Reset; cold reads started in an older epoch are discarded.
	epoch uint64
	// resetting counts resets whose empty state has not reached storage yet.
	// While non-zero the empty cache is authoritative.
	resetting int

	reads singleflight.Group

	persistMu    sync.Mutex
	persistedSeq uint64
	pending      sync.WaitGroup
	readOnly     sync.Once
}

// NewStore creates a Store on top of backend. A nil backend falls back to an
// in-memory one, which is only useful for tests and single-process defaults.
// An empty key selects DefaultStorageKey.
func NewStore(backend storage.Storage, key string) *Store {
	if backend == nil {
		backend = storage.NewMemoryStore()
	}
	if key == "" {
		key = DefaultStorageKey
	}
	return &Store{
		backend: backend,
		key:     key,
		cache:   Bag{},
	}
}

// Backend returns the durable storage the Store writes to.
func (s *Store) Backend() storage.Storage {
	return s.backend
}

// Key returns the durable storage key.
func (s *Store) Key() string {
	return s.key
}

// Read returns the currently known tokens: the cache if it is non-empty,
// otherwise whatever durable storage holds. Missing or malformed stored
// values read as an empty Bag.
func (s *Store) Read(ctx context.Context) Bag {
	s.mu.Lock()
	if len(s.cache) > 0 || s.resetting > 0 {
		cached := s.cache.Clone()
		s.mu.Unlock()
		return cached
	}
	epoch := s.epoch
	s.mu.Unlock()

	loaded := s.load(ctx, epoch)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A Reset or Write while loading supersedes the stored value
	if s.epoch != epoch || len(s.cache) > 0 {
		return s.cache.Clone()
	}
	return loaded
}

// load reads durable storage, coalescing concurrent cold reads of the same
// epoch into one lookup.
func (s *Store) load(ctx context.Context, epoch uint64) Bag {
	v, _, _ := s.reads.Do(s.key+"@"+strconv.FormatUint(epoch, 10), func() (any, error) {
		return s.loadOnce(context.WithoutCancel(ctx)), nil
	})
	return v.(Bag).Clone()
}

func (s *Store) loadOnce(ctx context.Context) Bag {
	raw, err := s.backend.GetItem(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return Bag{}
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read stored tokens", "key", s.key, "error", err)
		return Bag{}
	}

	bag, err := ParseBag(raw)
	if err != nil {
		slog.WarnContext(ctx, "ignoring malformed stored tokens", "key", s.key, "error", err)
		return Bag{}
	}
	return bag
}

// Write merges bag over the currently known tokens, updates the cache and
// schedules persistence of the merged result, which it returns.
// Persistence does not block the caller; use Wait to observe completion.
func (s *Store) Write(ctx context.Context, bag Bag) Bag {
	s.mu.Lock()
	warm := len(s.cache) > 0 || s.resetting > 0
	epoch := s.epoch
	s.mu.Unlock()

	// Storage I/O happens outside the lock
	var cold Bag
	if !warm {
		cold = s.load(ctx, epoch)
	}

	s.mu.Lock()
	base := s.cache
	if len(base) == 0 && s.epoch == epoch && s.resetting == 0 {
		base = cold
	}
	merged := base.Merge(bag)
	s.cache = merged
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.persist(ctx, seq, merged)

	return merged.Clone()
}

// Seed merges caller-supplied initial values over the known tokens and writes
// the result. Empty values are ignored. When several seeds race, the one that
// completes last wins.
func (s *Store) Seed(ctx context.Context, initial Bag) Bag {
	return s.Write(ctx, initial)
}

// Reset forgets all tokens, in memory and in durable storage.
// Unlike Write it persists synchronously. Until the empty state is stored,
// reads and writes treat the cache as authoritative, so tokens written
// concurrently are kept and the cleared ones never come back.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.cache = Bag{}
	s.seq++
	seq := s.seq
	s.epoch++
	s.resetting++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.resetting--
		s.mu.Unlock()
	}()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.backend.SetItem(ctx, s.key, "{}"); err != nil {
		return err
	}
	s.persistedSeq = seq
	return nil
}

// Snapshot returns the cached tokens without consulting durable storage.
func (s *Store) Snapshot() Bag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Clone()
}

// Prime replaces the cache without persisting. Used to carry tokens over when
// the backend changes during an activation.
func (s *Store) Prime(bag Bag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = Bag{}.Merge(bag)
}

// Wait blocks until all scheduled persistence has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

func (s *Store) persist(ctx context.Context, seq uint64, bag Bag) {
	serialized, err := bag.Marshal()
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode tokens", "key", s.key, "error", err)
		return
	}

	// Request contexts end with the response; persistence must outlive them.
	ctx = context.WithoutCancel(ctx)

	s.pending.Go(func() {
		s.persistMu.Lock()
		defer s.persistMu.Unlock()

		// A newer snapshot already reached storage
		if seq <= s.persistedSeq {
			return
		}

		err := s.backend.SetItem(ctx, s.key, serialized)
		if errors.Is(err, storage.ErrReadOnly) {
			s.readOnly.Do(func() {
				slog.DebugContext(ctx, "token storage is read-only, keeping tokens in memory", "key", s.key)
			})
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to persist tokens", "key", s.key, "error", err)
			return
		}
		s.persistedSeq = seq
	})
}
