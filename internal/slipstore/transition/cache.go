// Package transition is the page-transition cache: a local SQLite file the
// case-design page can read even when the slip store is unavailable.
package transition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

type Cache struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Cache, error) {
	if path == "" {
		path = "data/transition.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		owner INTEGER NOT NULL,
		key TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (owner, key)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entries table: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) Put(ctx context.Context, owner int64, key string, data []byte) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO entries(owner, key, payload, updated_at) VALUES(?,?,?,?)
		ON CONFLICT(owner, key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		owner, key, data, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns nil data when the entry is absent.
func (c *Cache) Get(ctx context.Context, owner int64, key string) ([]byte, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM entries WHERE owner = ? AND key = ?`, owner, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

func (c *Cache) Delete(ctx context.Context, owner int64, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE owner = ? AND key = ?`, owner, key)
	return err
}

// Purge drops entries not written since before and reports how many.
func (c *Cache) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE updated_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return res.RowsAffected()
}
