// Package memcache stores cache entries in memcached.
package memcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	gomemcache "github.com/bradfitz/gomemcache/memcache"

	"github.com/jonwraymond/viewcache/cache"
)

// maxKeyLength is memcached's hard limit on key length.
const maxKeyLength = 250

// relativeExpiryLimit is the largest expiration memcached reads as a
// relative number of seconds; larger values are unix timestamps.
const relativeExpiryLimit = 30 * 24 * time.Hour

// client is the subset of *gomemcache.Client the backend uses.
type client interface {
	Get(key string) (*gomemcache.Item, error)
	Set(item *gomemcache.Item) error
	Delete(key string) error
	Ping() error
}

// Config configures the memcached backend.
type Config struct {
	// Servers are host:port addresses. Required.
	Servers []string

	// Timeout is the socket read/write timeout.
	// Default: gomemcache's DefaultTimeout (500ms)
	Timeout time.Duration

	// MaxIdleConns per server.
	// Default: gomemcache's DefaultMaxIdleConns (2)
	MaxIdleConns int
}

// Backend implements cache.Backend on top of gomemcache.
type Backend struct {
	mc  client
	now func() time.Time
}

// New connects a backend to the configured servers. gomemcache dials
// lazily, so New does not fail on unreachable servers; use Ping.
func New(cfg Config) (*Backend, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("%w: memcache servers are required", cache.ErrInvalidArgument)
	}

	mc := gomemcache.New(cfg.Servers...)
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
	}
	if cfg.MaxIdleConns > 0 {
		mc.MaxIdleConns = cfg.MaxIdleConns
	}
	return newBackend(mc), nil
}

func newBackend(mc client) *Backend {
	return &Backend{mc: mc, now: time.Now}
}

// Key maps a cache key onto a valid memcached key. Keys that are too long
// or contain spaces or control characters are replaced by their SHA-256.
func Key(key string) string {
	if len(key) <= maxKeyLength && legalKey(key) {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func legalKey(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

// expiration converts ttl to memcached's int32 expiration, rounding up to
// whole seconds so an entry never disappears early.
func (b *Backend) expiration(ttl time.Duration) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs <= 0 {
		secs = 1
	}
	if time.Duration(secs)*time.Second > relativeExpiryLimit {
		return int32(b.now().Unix() + secs)
	}
	return int32(secs)
}

// Get fetches the raw value. A memcached miss is (nil, false, nil).
func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := b.mc.Get(Key(key))
	if errors.Is(err, gomemcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memcache get: %w", err)
	}
	return item.Value, true, nil
}

// Set stores value with a physical TTL.
func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.mc.Set(&gomemcache.Item{
		Key:        Key(key),
		Value:      value,
		Expiration: b.expiration(ttl),
	})
	if err != nil {
		return fmt.Errorf("memcache set: %w", err)
	}
	return nil
}

// Delete removes key. A miss is not an error.
func (b *Backend) Delete(_ context.Context, key string) error {
	err := b.mc.Delete(Key(key))
	if err != nil && !errors.Is(err, gomemcache.ErrCacheMiss) {
		return fmt.Errorf("memcache delete: %w", err)
	}
	return nil
}

// Ping checks that every server is reachable.
func (b *Backend) Ping(_ context.Context) error {
	if err := b.mc.Ping(); err != nil {
		return fmt.Errorf("memcache ping: %w", err)
	}
	return nil
}

// Close is a no-op; gomemcache keeps only idle connections.
func (b *Backend) Close() error {
	return nil
}

var _ cache.Backend = (*Backend)(nil)
