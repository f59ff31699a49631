package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/hotspot-location-service/internal/models"
)

// SQLiteCache is a persistent Cache backed by SQLite, for single-node
// deployments and the enrich CLI.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteCache opens (or creates) a SQLite database at path and initialises
// the schema. Use ":memory:" for an in-memory database.
func NewSQLiteCache(path string, ttl time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "open sqlite")
	}
	// every pooled connection to ":memory:" would get its own database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS location_cache (
			key        TEXT PRIMARY KEY,
			location   TEXT NOT NULL,
			raw        TEXT,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "create location_cache table")
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get implements Cache.Get. Expired rows count as misses and are left for
// Prune.
func (c *SQLiteCache) Get(ctx context.Context, lat, lng float64) (models.Location, bool, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT location FROM location_cache WHERE key = ? AND expires_at > ?`,
		Key(lat, lng), c.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Location{}, false, nil
	}
	if err != nil {
		return models.Location{}, false, eris.Wrap(err, "sqlite get")
	}

	var loc models.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return models.Location{}, false, eris.Wrap(err, "sqlite decode")
	}
	return loc, true, nil
}

// Set implements Cache.Set, replacing any existing row for the coordinate.
func (c *SQLiteCache) Set(ctx context.Context, e Entry) error {
	loc, err := json.Marshal(e.Location)
	if err != nil {
		return eris.Wrap(err, "sqlite encode")
	}
	var raw any
	if len(e.Raw) > 0 {
		raw = string(e.Raw)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO location_cache (key, location, raw, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET location = excluded.location, raw = excluded.raw, expires_at = excluded.expires_at`,
		Key(e.Latitude, e.Longitude), string(loc), raw, c.now().Add(c.ttl).Unix(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite set")
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (c *SQLiteCache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM location_cache WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite prune")
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (c *SQLiteCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
