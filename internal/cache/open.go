package cache

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/serpcluster/internal/db"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Path        string // leveldb directory
	RedisURL    string
	PostgresURL string
	Surreal     db.Config
}

// Open creates the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case "", BackendLevelDB:
		return OpenLevelDB(opts.Path)
	case BackendRedis:
		return OpenRedis(opts.RedisURL)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.PostgresURL)
	case BackendSurreal:
		return OpenSurreal(ctx, opts.Surreal)
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", opts.Backend)
	}
}

// Surreal adapts the SurrealDB client to the Store contract.
type Surreal struct {
	client *db.Client
}

// OpenSurreal connects to SurrealDB and defines the cache table.
func OpenSurreal(ctx context.Context, cfg db.Config) (*Surreal, error) {
	const op = "cache.surreal.Open"

	client, err := db.NewClient(ctx, cfg, nil)
	if err != nil {
		return nil, unavailable(op, err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, unavailable(op, err)
	}
	return &Surreal{client: client}, nil
}

func (s *Surreal) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	entry, err := s.client.GetCacheEntry(ctx, key)
	if err != nil {
		return nil, unavailable("cache.surreal.Get", err)
	}
	return entry, nil
}

func (s *Surreal) Put(ctx context.Context, entry models.CacheEntry) error {
	if err := s.client.PutCacheEntry(ctx, entry); err != nil {
		return unavailable("cache.surreal.Put", err)
	}
	return nil
}

func (s *Surreal) List(ctx context.Context, prefix string, limit int) ([]models.CacheEntry, error) {
	entries, err := s.client.ListCacheEntries(ctx, prefix, limit)
	if err != nil {
		return nil, unavailable("cache.surreal.List", err)
	}
	return entries, nil
}

func (s *Surreal) Delete(ctx context.Context, key string) error {
	if err := s.client.DeleteCacheEntry(ctx, key); err != nil {
		return unavailable("cache.surreal.Delete", err)
	}
	return nil
}

func (s *Surreal) Close() error {
	return s.client.Close(context.Background())
}
