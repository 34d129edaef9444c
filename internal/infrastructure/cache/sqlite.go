package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shelfmatch/backend/internal/domain"
)

// SQLiteCache is a file-backed cache that survives process restarts, so a
// re-run of a large batch does not repeat catalog retrievals. Values are
// stored as JSON.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database at path.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite cache path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get retrieves a value from the cache
func (c *SQLiteCache) Get(ctx context.Context, key string) (interface{}, error) {
	var encoded string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&encoded, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	if time.Now().Unix() > expiresAt {
		return nil, domain.ErrCacheMiss
	}

	var value interface{}
	if err := json.Unmarshal([]byte(encoded), &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value in the cache with TTL
func (c *SQLiteCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(encoded), time.Now().Add(ttl).Unix())
	return err
}

// Delete removes a value from the cache
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Exists checks if a key exists in the cache and is not expired
func (c *SQLiteCache) Exists(ctx context.Context, key string) (bool, error) {
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().Unix() <= expiresAt, nil
}

// Prune removes expired entries.
func (c *SQLiteCache) Prune(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at < ?`, time.Now().Unix())
	return err
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
