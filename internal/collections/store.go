// Package collections keeps the featured collection list in Postgres.
package collections

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultIDs seeds an empty table with the collections shown on /collections.
var DefaultIDs = []int64{
	86311, 1241, 10, 9485, 87359, 645, 263, 119, 121938, 295,
	748, 126125, 131635, 10194, 2028, 1709, 531, 86066, 77816, 105951,
}

func EnsureSchema(ctx context.Context, db DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS featured_collections (
			tmdb_id bigint PRIMARY KEY,
			position integer NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS featured_collections_position_idx ON featured_collections (position)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Seed inserts ids in order, leaving existing rows alone.
func Seed(ctx context.Context, db DB, ids []int64) error {
	for i, id := range ids {
		_, err := db.Exec(ctx,
			`INSERT INTO featured_collections (tmdb_id, position) VALUES ($1, $2) ON CONFLICT (tmdb_id) DO NOTHING`,
			id, i)
		if err != nil {
			return fmt.Errorf("seed collection %d: %w", id, err)
		}
	}
	return nil
}

type Store struct {
	db    DB
	ttl   time.Duration
	cache *cacheStore
	now   func() time.Time
}

// NewStore returns a store whose reads are cached for ttl. A zero ttl
// disables caching.
func NewStore(db DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl, cache: newCache(), now: time.Now}
}

const featuredKey = "featured"

// FeaturedIDs lists featured collection ids in display order.
func (s *Store) FeaturedIDs(ctx context.Context) ([]int64, error) {
	if ids, ok := s.cache.Get(featuredKey, s.now()); ok {
		return ids, nil
	}
	rows, err := s.db.Query(ctx, `SELECT tmdb_id FROM featured_collections ORDER BY position, tmdb_id`)
	if err != nil {
		return nil, fmt.Errorf("list featured collections: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan featured collections: %w", err)
	}
	s.cache.Set(featuredKey, ids, s.ttl, s.now())
	return ids, nil
}
