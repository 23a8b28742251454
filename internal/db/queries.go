package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// cacheRecord is the stored shape of a cache entry. The payload is kept as a
// JSON string so it round-trips byte for byte.
type cacheRecord struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (r cacheRecord) entry() models.CacheEntry {
	return models.CacheEntry{
		Key:       r.Key,
		Payload:   []byte(r.Payload),
		FetchedAt: r.FetchedAt,
	}
}

// GetCacheEntry returns nil if the key is absent.
func (c *Client) GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	results, err := surrealdb.Query[[]cacheRecord](ctx, c.db, `
		SELECT key, kind, payload, fetched_at FROM type::record("cache_entry", $key)
	`, map[string]any{"key": key})
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	e := (*results)[0].Result[0].entry()
	return &e, nil
}

// PutCacheEntry replaces the entry stored under entry.Key.
func (c *Client) PutCacheEntry(ctx context.Context, entry models.CacheEntry) error {
	kind, _, _ := strings.Cut(entry.Key, "|")
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("cache_entry", $key) CONTENT {
			key: $key,
			kind: $kind,
			payload: $payload,
			fetched_at: $fetched_at
		} RETURN NONE
	`, map[string]any{
		"key":        entry.Key,
		"kind":       kind,
		"payload":    string(entry.Payload),
		"fetched_at": entry.FetchedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("put cache entry: %w", wrapQueryError(err))
	}
	return nil
}

// ListCacheEntries returns entries whose key starts with prefix, ordered by key.
func (c *Client) ListCacheEntries(ctx context.Context, prefix string, limit int) ([]models.CacheEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	results, err := surrealdb.Query[[]cacheRecord](ctx, c.db, `
		SELECT key, kind, payload, fetched_at FROM cache_entry
		WHERE string::starts_with(key, $prefix)
		ORDER BY key
		LIMIT $limit
	`, map[string]any{"prefix": prefix, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", wrapQueryError(err))
	}

	out := []models.CacheEntry{}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out = append(out, r.entry())
		}
	}
	return out, nil
}

// DeleteCacheEntry removes a single entry. Deleting a missing key is not an error.
func (c *Client) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("cache_entry", $key)
	`, map[string]any{"key": key})
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", wrapQueryError(err))
	}
	return nil
}
