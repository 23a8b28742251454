package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raphaelgruber/serpcluster/internal/cache/migrations"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

// Postgres is a Store backed by a single cache_entries table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and applies the embedded migrations.
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	const op = "cache.postgres.Open"

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, unavailable(op, fmt.Errorf("create pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(op, fmt.Errorf("ping: %w", err))
	}
	if err := runMigrations(connString); err != nil {
		pool.Close()
		return nil, unavailable(op, err)
	}
	return &Postgres{pool: pool}, nil
}

func runMigrations(connString string) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	const op = "cache.postgres.Get"

	entry := models.CacheEntry{Key: key}
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload, fetched_at FROM cache_entries WHERE key = $1`, key,
	).Scan(&payload, &entry.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	entry.Payload = payload
	return &entry, nil
}

func (s *Postgres) Put(ctx context.Context, entry models.CacheEntry) error {
	const op = "cache.postgres.Put"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, kind, payload, fetched_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`, entry.Key, kindOf(entry.Key), string(entry.Payload), entry.FetchedAt)
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, prefix string, limit int) ([]models.CacheEntry, error) {
	const op = "cache.postgres.List"

	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT key, payload, fetched_at FROM cache_entries
		WHERE starts_with(key, $1)
		ORDER BY key
		LIMIT $2
	`, prefix, limit)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]models.CacheEntry, 0)
	for rows.Next() {
		var e models.CacheEntry
		var payload []byte
		if err := rows.Scan(&e.Key, &payload, &e.FetchedAt); err != nil {
			return nil, unavailable(op, err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	const op = "cache.postgres.Delete"

	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func kindOf(key string) string {
	kind, _, _ := strings.Cut(key, "|")
	return kind
}
