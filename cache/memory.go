package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store.
//
// Each write swaps in a new immutable *Entry under the map lock, so a reader
// always sees a value together with the timestamp and TTL of the same write.
// Stale entries stay in the map until they are overwritten, deleted or swept.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	clock   Clock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	cfg := newStoreConfig(opts)
	return &MemoryStore{
		entries: make(map[string]*Entry),
		clock:   cfg.clock,
	}
}

// Exists reports whether a fresh entry is stored under key.
func (s *MemoryStore) Exists(ctx context.Context, key string, _ Options) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Get returns the stored value. Returns (nil, false) on miss or expiry.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !entry.Fresh(s.clock.Now()) {
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key with opts.ExpiresIn as its TTL. A non-positive
// TTL stores nothing and drops any previous entry for key.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, opts Options) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if opts.ExpiresIn <= 0 {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil
	}

	entry := &Entry{
		Value:     value,
		WrittenAt: s.clock.Now(),
		TTL:       opts.ExpiresIn,
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return nil
}

// Delete removes a value from the store. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Sweep drops every stale entry and returns how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.Fresh(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of physically stored entries, stale ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Sweeper = (*MemoryStore)(nil)
)
