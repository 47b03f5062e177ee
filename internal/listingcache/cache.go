package listingcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/skydeed/skydeed/internal/domain"
)

// Stage tracks how far a cached listing has moved through the purchase flow.
type Stage string

const (
	StageDraft       Stage = "draft"
	StageValidated   Stage = "validated"
	StageMinted      Stage = "minted"
	StageTransferred Stage = "transferred"
)

var ErrNotFound = errors.New("listingcache: listing not found")

// Cache is a local SQLite-backed working set of listings.
// It is a convenience layer for the API server; chain state stays authoritative.
type Cache struct {
	db *sql.DB
}

// Entry is a cached listing plus its pipeline stage.
type Entry struct {
	Listing   domain.ListingDescriptor `json:"listing"`
	Stage     Stage                    `json:"stage"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

func Open(dbPath string) (*Cache, error) {
	if dbPath == "" {
		return nil, errors.New("listingcache: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("listingcache: mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("listingcache: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Cache) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS listings (
  token_id TEXT PRIMARY KEY,
  property_address TEXT NOT NULL,
  current_height REAL NOT NULL,
  max_height REAL NOT NULL,
  available_floors INTEGER NOT NULL,
  asking_price TEXT NOT NULL,
  latitude REAL,
  longitude REAL,
  stage TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_stage ON listings(stage);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("listingcache: migrate: %w", err)
		}
	}
	return nil
}

// Put inserts or replaces a listing at the given stage.
func (c *Cache) Put(ctx context.Context, listing *domain.ListingDescriptor, stage Stage) error {
	if listing == nil || listing.TokenID == "" {
		return errors.New("listingcache: listing with token id is required")
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO listings (token_id, property_address, current_height, max_height, available_floors, asking_price, latitude, longitude, stage, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(token_id) DO UPDATE SET
  property_address = excluded.property_address,
  current_height   = excluded.current_height,
  max_height       = excluded.max_height,
  available_floors = excluded.available_floors,
  asking_price     = excluded.asking_price,
  latitude         = excluded.latitude,
  longitude        = excluded.longitude,
  stage            = excluded.stage,
  updated_at       = excluded.updated_at`,
		listing.TokenID, listing.PropertyAddress, listing.CurrentHeight, listing.MaxHeight,
		listing.AvailableFloors, listing.AskingPrice.String(), listing.Latitude, listing.Longitude,
		string(stage), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Advance moves a listing to a later stage without touching its fields.
func (c *Cache) Advance(ctx context.Context, tokenID string, stage Stage) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE listings SET stage = ?, updated_at = ? WHERE token_id = ?`,
		string(stage), time.Now().UTC().Format(time.RFC3339Nano), tokenID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a single cached listing.
func (c *Cache) Get(ctx context.Context, tokenID string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT token_id, property_address, current_height, max_height, available_floors, asking_price, latitude, longitude, stage, updated_at
FROM listings WHERE token_id = ?`, tokenID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// List returns all cached listings, most recently updated first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT token_id, property_address, current_height, max_height, available_floors, asking_price, latitude, longitude, stage, updated_at
FROM listings ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// Delete removes a listing from the cache.
func (c *Cache) Delete(ctx context.Context, tokenID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM listings WHERE token_id = ?`, tokenID)
	return err
}

// PurgeOlderThan drops listings that have not been touched within the window.
func (c *Cache) PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339Nano)
	res, err := c.db.ExecContext(ctx, `DELETE FROM listings WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry    Entry
		price    string
		stage    string
		updated  string
		lat, lng sql.NullFloat64
	)
	err := row.Scan(
		&entry.Listing.TokenID, &entry.Listing.PropertyAddress,
		&entry.Listing.CurrentHeight, &entry.Listing.MaxHeight,
		&entry.Listing.AvailableFloors, &price, &lat, &lng, &stage, &updated)
	if err != nil {
		return nil, err
	}
	entry.Listing.AskingPrice, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("listingcache: bad price %q: %w", price, err)
	}
	entry.Listing.Latitude = lat.Float64
	entry.Listing.Longitude = lng.Float64
	entry.Stage = Stage(stage)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &entry, nil
}
