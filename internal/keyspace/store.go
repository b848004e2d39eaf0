package keyspace

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store is CoolCache's single-database keyspace: one mutex-guarded map from
// key name to typed entry, with lazy expiry on access and a change counter
// the snapshot subsystem polls against its (seconds, changes) save schedule.
// The locking and defensive-copy-on-read shape is carried over from
// a mutex-guarded per-entity state store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	changes int64 // atomic; incremented once per write command that mutated data

	now func() time.Time // overridable for tests
}

// NewStore constructs an empty keyspace.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Changes returns the number of mutating writes observed since startup,
// the counter SnapshotManager's auto-save schedule compares against.
func (s *Store) Changes() int64 { return atomic.LoadInt64(&s.changes) }

func (s *Store) bumpChanges() { atomic.AddInt64(&s.changes, 1) }

// lockedGet returns the live entry for key, deleting and reporting it as
// absent if its TTL has lapsed. Must be called with s.mu held for writing
// if expiry deletion may occur; callers that only need a read may upgrade
// as needed. For simplicity every lookup takes the write lock, matching the
// single-mutex-per-store style rather than split rd/wr paths that
// would force a second expiry sweep.
func (s *Store) lockedGet(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lockedGet(key)
	return ok
}

// Type returns the Kind stored under key, or false if absent/expired.
func (s *Store) Type(key string) (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lockedGet(key)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Del removes one or more keys, returning how many were actually present.
func (s *Store) Del(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, key := range keys {
		if _, ok := s.lockedGet(key); ok {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.bumpChanges()
	}
	return removed
}

// Keys returns all unexpired key names matching the Redis-style glob
// pattern (see MatchGlob). Expired keys are swept as they're encountered.
func (s *Store) Keys(pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []string
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		if MatchGlob(pattern, key) {
			out = append(out, key)
		}
	}
	return out
}

// Expire sets key's TTL to ttl from now. Returns false if key doesn't exist.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lockedGet(key)
	if !ok {
		return false
	}
	e.expiresAt = s.now().Add(ttl)
	s.bumpChanges()
	return true
}

// Persist removes any TTL on key. Returns true if a TTL was actually cleared.
func (s *Store) Persist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lockedGet(key)
	if !ok || !e.hasExpiry() {
		return false
	}
	e.expiresAt = time.Time{}
	s.bumpChanges()
	return true
}

// TTL returns the remaining time to live for key. ok is false if the key
// does not exist; hasTTL is false (with a zero duration) if the key has no
// expiry.
func (s *Store) TTL(key string) (ttl time.Duration, hasTTL bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.lockedGet(key)
	if !exists {
		return 0, false, false
	}
	if !e.hasExpiry() {
		return 0, false, true
	}
	remaining := e.expiresAt.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, true
}

// getTyped fetches key's entry, enforcing it either doesn't exist or
// matches want. Used by every typed accessor to produce ErrWrongType.
func (s *Store) getTyped(key string, want Kind) (*entry, bool, error) {
	e, ok := s.lockedGet(key)
	if !ok {
		return nil, false, nil
	}
	if e.kind != want {
		return nil, true, ErrWrongType
	}
	return e, true, nil
}

// FlushAll discards every key, as FLUSHALL requires.
func (s *Store) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.bumpChanges()
}

// SetNow overrides the store's clock; intended for deterministic TTL tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}
