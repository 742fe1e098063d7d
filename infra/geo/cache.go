package geo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/erbalance/core/model"
)

// SQLiteCache persists geocoding results keyed by normalized query.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens or creates the cache database.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS geocode_cache (
        query TEXT PRIMARY KEY,
        lat REAL NOT NULL,
        lon REAL NOT NULL,
        resolved_at INTEGER NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteCache{db: db}, nil
}

// Lookup implements core/geo.Cache.
func (c *SQLiteCache) Lookup(ctx context.Context, key string) (model.Coordinates, bool, error) {
	var out model.Coordinates
	err := c.db.QueryRowContext(ctx, `SELECT lat, lon FROM geocode_cache WHERE query = ?`, key).Scan(&out.Lat, &out.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Coordinates{}, false, nil
	}
	if err != nil {
		return model.Coordinates{}, false, err
	}
	return out, true, nil
}

// Save implements core/geo.Cache.
func (c *SQLiteCache) Save(ctx context.Context, key string, co model.Coordinates) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO geocode_cache (query, lat, lon, resolved_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(query) DO UPDATE SET lat = excluded.lat, lon = excluded.lon, resolved_at = excluded.resolved_at`,
		key, co.Lat, co.Lon, time.Now().Unix())
	return err
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error { return c.db.Close() }
