package lmsclient

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Cache persists the most recently synchronized View to a local sqlite
// database, so a run can fall back to it when the LMS is unreachable
// (spec.md §4.1). Grounded on the teacher's (now-removed) sqlite-open idiom:
// detect a corrupt/incompatible cache and recreate rather than failing
// forever.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := openCacheDB(path)
	if err != nil {
		if isSchemaError(err) {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, errors.Wrapf(rmErr, "remove incompatible cache %s", path)
			}
			return openCacheDB(path)
		}
		return nil, err
	}
	return db, nil
}

func isSchemaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") || strings.Contains(msg, "SQL logic error")
}

func openCacheDB(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create cache directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open cache %s", path)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply cache schema")
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save atomically replaces the cached View. spec.md §4.1: "on success,
// atomically writes a cache file" — a single-row REPLACE inside an
// implicit sqlite transaction gives the same all-or-nothing guarantee.
func (c *Cache) Save(ctx context.Context, view View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return errors.Wrap(err, "marshal lms view")
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO course_cache (id, view_json) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET view_json = excluded.view_json
	`, string(data))
	if err != nil {
		return errors.Wrap(err, "write lms cache")
	}
	return nil
}

// Load returns the previously cached View, or ok=false if none has ever
// been saved.
func (c *Cache) Load(ctx context.Context) (View, bool, error) {
	var blob string
	err := c.db.QueryRowContext(ctx, `SELECT view_json FROM course_cache WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return View{}, false, nil
	}
	if err != nil {
		return View{}, false, errors.Wrap(err, "read lms cache")
	}
	var view View
	if err := json.Unmarshal([]byte(blob), &view); err != nil {
		return View{}, false, errors.Wrap(err, "parse cached lms view")
	}
	return view, true, nil
}

// Invalidate deletes the cache entirely. spec.md §4.1: "any operation that
// writes to the LMS must delete the cache file and force a fresh
// synchronization on the next read within the same run."
func (c *Cache) Invalidate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM course_cache`)
	if err != nil {
		return errors.Wrap(err, "invalidate lms cache")
	}
	return nil
}
