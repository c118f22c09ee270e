package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/viewcache/observe"
	"github.com/jonwraymond/viewcache/resilience"
)

// Backend is a raw byte key/value service with storage-level expiry, such as
// memcached or a SQLite table.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
//     I/O failures are returned as errors.
//   - Set may evict the value any time after ttl has elapsed.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// backendGrace pads the physical TTL handed to the backend so that logical
// expiry, judged from the envelope, always decides first.
const backendGrace = time.Second

// BackendStore adapts a Backend to the Store contract.
//
// Values are wrapped in an Entry envelope so that freshness is computed from
// the recorded write time and TTL with the store's own clock. Reads fail
// open: any backend or decoding failure is logged and reported as a miss.
type BackendStore struct {
	backend  Backend
	clock    Clock
	logger   observe.Logger
	executor *resilience.Executor
}

// NewBackendStore wraps backend. Use WithExecutor to guard calls with a
// circuit breaker and timeout.
func NewBackendStore(backend Backend, opts ...StoreOption) *BackendStore {
	cfg := newStoreConfig(opts)
	return &BackendStore{
		backend:  backend,
		clock:    cfg.clock,
		logger:   cfg.logger,
		executor: cfg.executor,
	}
}

func (s *BackendStore) run(ctx context.Context, op func(context.Context) error) error {
	if s.executor == nil {
		return op(ctx)
	}
	return s.executor.Execute(ctx, op)
}

// Exists reports whether a fresh entry is stored under key.
func (s *BackendStore) Exists(ctx context.Context, key string, _ Options) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Get returns the stored value, or (nil, false) on miss, expiry or failure.
func (s *BackendStore) Get(ctx context.Context, key string) ([]byte, bool) {
	var (
		raw   []byte
		found bool
	)
	err := s.run(ctx, func(ctx context.Context) error {
		v, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return err
		}
		raw, found = v, ok
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "cache backend read failed, treating as miss",
			observe.Field{Key: "cache.key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry Entry
	if err := entry.UnmarshalBinary(raw); err != nil {
		s.logger.Warn(ctx, "cache entry undecodable, treating as miss",
			observe.Field{Key: "cache.key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, false
	}
	if !entry.Fresh(s.clock.Now()) {
		return nil, false
	}
	return entry.Value, true
}

// Set writes the entry envelope. Backend failures wrap ErrBackendUnavailable.
// A non-positive TTL stores nothing and deletes any previous entry for key.
func (s *BackendStore) Set(ctx context.Context, key string, value []byte, opts Options) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if opts.ExpiresIn <= 0 {
		return s.Delete(ctx, key)
	}

	entry := Entry{Value: value, WrittenAt: s.clock.Now(), TTL: opts.ExpiresIn}
	data, err := entry.MarshalBinary()
	if err != nil {
		return &EncodingError{Key: key, Err: err}
	}

	err = s.run(ctx, func(ctx context.Context) error {
		return s.backend.Set(ctx, key, data, opts.ExpiresIn+backendGrace)
	})
	if err != nil {
		return fmt.Errorf("%w: set %q: %w", ErrBackendUnavailable, key, err)
	}
	return nil
}

// Delete removes the entry from the backend.
func (s *BackendStore) Delete(ctx context.Context, key string) error {
	err := s.run(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("%w: delete %q: %w", ErrBackendUnavailable, key, err)
	}
	return nil
}

// Sweep delegates to the backend when it can drop expired rows itself.
func (s *BackendStore) Sweep(ctx context.Context) (int, error) {
	sw, ok := s.backend.(Sweeper)
	if !ok {
		return 0, nil
	}
	return sw.Sweep(ctx)
}

// Ping checks the backend directly, bypassing the executor.
func (s *BackendStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *BackendStore) Close() error {
	return s.backend.Close()
}

var (
	_ Store   = (*BackendStore)(nil)
	_ Sweeper = (*BackendStore)(nil)
)
