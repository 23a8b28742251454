// Package cache provides the persistent result cache used by the fetch orchestrator.
//
// A Store is a plain key/value contract: it never evaluates freshness. Callers decide
// whether an entry is usable from its FetchedAt timestamp.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// ErrUnavailable wraps every backend failure. Callers treat it as a cache miss.
var ErrUnavailable = errors.New("cache unavailable")

// Store reads and writes cache entries by key.
type Store interface {
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	// Put fully replaces any existing entry for entry.Key.
	Put(ctx context.Context, entry models.CacheEntry) error
	Close() error
}

// Lister is implemented by stores that can enumerate entries by key prefix.
type Lister interface {
	List(ctx context.Context, prefix string, limit int) ([]models.CacheEntry, error)
}

// Deleter is implemented by stores that can remove a single entry.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSurreal  = "surreal"
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func encodeEntry(e models.CacheEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(data []byte) (*models.CacheEntry, error) {
	var e models.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
