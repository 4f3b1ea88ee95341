// Package snapshot caches expensive external-system reads (full tenant and
// node listings) between reconciliation runs. Entries carry their own
// freshness stamp so a failed refresh can fall back to the last good value
// instead of failing the read.
package snapshot

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/logging"
)

// Loader produces a fresh value for a snapshot key.
type Loader func(ctx context.Context) (any, error)

// item wraps a cached value with its own freshness stamp. Entries are kept
// past their TTL so stale fallback stays possible; freshness is checked
// here, not by the cache's janitor.
type item struct {
	value    any
	storedAt time.Time
}

// Store is a read-through snapshot cache keyed by system name.
type Store struct {
	cache *gocache.Cache
	ttl   time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// New creates a Store with the default snapshot TTL.
func New() *Store {
	return NewWithTTL(constants.SnapshotTTL)
}

// NewWithTTL creates a Store whose entries count as fresh for ttl.
func NewWithTTL(ttl time.Duration) *Store {
	return &Store{
		cache: gocache.New(gocache.NoExpiration, constants.SnapshotCleanupInterval),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the value for key, loading it when missing or stale. When the
// load fails and allowStale is set, the last good value is returned instead
// of the error. Loads for the same store are serialized so a thundering
// herd cannot stampede the upstream systems.
func (s *Store) Get(ctx context.Context, key string, load Loader, allowStale bool) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.lookup(key)
	if ok && s.fresh(cached) {
		return cached.value, nil
	}

	value, err := load(ctx)
	if err != nil {
		if allowStale && ok {
			logging.FromContext(ctx).Warn().
				Err(err).
				Str("key", key).
				Time("stored_at", cached.storedAt).
				Msg("refresh failed; serving stale snapshot")
			return cached.value, nil
		}
		return nil, err
	}

	s.cache.Set(key, item{value: value, storedAt: s.now()}, gocache.NoExpiration)
	return value, nil
}

// Put stores a value directly, stamping it fresh. Used to write through
// results a reconciliation run already paid for.
func (s *Store) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, item{value: value, storedAt: s.now()}, gocache.NoExpiration)
}

// Invalidate drops a key so the next read reloads.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
}

func (s *Store) lookup(key string) (item, bool) {
	raw, ok := s.cache.Get(key)
	if !ok {
		return item{}, false
	}
	it, ok := raw.(item)
	return it, ok
}

func (s *Store) fresh(it item) bool {
	return s.now().Sub(it.storedAt) < s.ttl
}
