// Package sqlstore keeps cache entries in a local SQLite file, so cached
// listings survive a process restart.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/jonwraymond/viewcache/cache"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		key        TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL,
		value      BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS cache_entries_expires_idx ON cache_entries (expires_at)`,
}

// Backend implements cache.Backend and cache.Sweeper over SQLite.
//
// expires_at holds the physical expiry in unix milliseconds. Rows past it
// read as misses and are removed by Sweep.
type Backend struct {
	db  *sql.DB
	now func() time.Time

	writeMu sync.Mutex // SQLite allows a single writer
}

// Open opens or creates the database at path and prepares the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", cache.ErrInvalidArgument)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	b := &Backend{db: db, now: time.Now}
	if err := b.init(ctx, path != ":memory:"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init(ctx context.Context, wal bool) error {
	if wal {
		if _, err := b.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

// Get returns the row for key unless it is past its physical expiry.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		expiresAt int64
		value     []byte
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT expires_at, value FROM cache_entries WHERE key = ?", key,
	).Scan(&expiresAt, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get: %w", err)
	}
	if b.now().UnixMilli() > expiresAt {
		return nil, false, nil
	}
	return value, true, nil
}

// Set inserts or replaces the row for key.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := b.now().Add(ttl).UnixMilli()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	_, err := b.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_entries (key, expires_at, value) VALUES (?, ?, ?)",
		key, expiresAt, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Delete removes the row for key. A missing row is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if _, err := b.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Sweep deletes every row past its physical expiry.
func (b *Backend) Sweep(ctx context.Context) (int, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	res, err := b.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at < ?", b.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite sweep: %w", err)
	}
	return int(n), nil
}

// Count returns the number of stored rows, expired ones included.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

var (
	_ cache.Backend = (*Backend)(nil)
	_ cache.Sweeper = (*Backend)(nil)
)
