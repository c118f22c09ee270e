package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 1024

// Sentinel errors for cache operations.
var (
	ErrNilStore           = errors.New("cache: store is nil")
	ErrInvalidKey         = errors.New("cache: key is invalid")
	ErrKeyTooLong         = errors.New("cache: key exceeds max length")
	ErrInvalidArgument    = errors.New("cache: invalid argument")
	ErrBackendUnavailable = errors.New("cache: backend unavailable")
	ErrEncoding           = errors.New("cache: encoding failed")
)

// EncodingError reports a value that could not be encoded for storage or
// decoded after retrieval. It matches ErrEncoding with errors.Is.
type EncodingError struct {
	Key string
	Err error
}

func (e *EncodingError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: encoding failed: %v", e.Err)
	}
	return fmt.Sprintf("cache: encoding failed for %q: %v", e.Key, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEncoding.
func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// Options configures a single write. It is attached at write time and applies
// to that entry only.
type Options struct {
	// ExpiresIn is the TTL for the entry. Zero or negative stores nothing.
	ExpiresIn time.Duration

	// Extra carries backend-specific options. The core never interprets it.
	Extra map[string]any
}

// Store is a keyed, TTL-aware cache store.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Freshness: an entry is fresh while now - written <= ttl. Stale entries
//     are reported exactly like misses.
//   - Errors: Get and Exists never error; infrastructure failures read as
//     a miss. Set reports failures so the caller can decide what to do.
type Store interface {
	// Exists reports whether a fresh entry is stored under key. opts never
	// extends the life of the entry.
	Exists(ctx context.Context, key string, opts Options) bool

	// Get returns the value stored under key. Returns (nil, false) on miss
	// or when the entry is stale.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set writes or overwrites the entry for key, stamping the current time
	// and opts.ExpiresIn as its TTL.
	Set(ctx context.Context, key string, value []byte, opts Options) error

	// Delete removes the entry. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by stores and backends that can drop physically
// present but stale entries in bulk.
type Sweeper interface {
	// Sweep removes stale entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
