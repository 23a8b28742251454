package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// CacheLookupInput defines the input schema for cache_lookup.
type CacheLookupInput struct {
	Keyword      string `json:"keyword" jsonschema:"Keyword to look up"`
	Kind         string `json:"kind,omitempty" jsonschema:"serp (default), volume, difficulty or intent"`
	LocationCode int    `json:"location_code,omitempty" jsonschema:"Search location code"`
	LanguageCode string `json:"language_code,omitempty" jsonschema:"Search language code"`
	Device       string `json:"device,omitempty" jsonschema:"desktop or mobile"`
}

// CacheLookupResult is the response from cache_lookup.
type CacheLookupResult struct {
	Key       string          `json:"key"`
	Found     bool            `json:"found"`
	FetchedAt string          `json:"fetched_at,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewCacheLookupHandler creates the cache_lookup tool handler.
func NewCacheLookupHandler(deps *Dependencies) mcp.ToolHandlerFor[CacheLookupInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CacheLookupInput) (*mcp.CallToolResult, any, error) {
		if models.NormalizeKeyword(input.Keyword) == "" {
			return ErrorResult("A keyword is required", ""), nil, nil
		}

		kind := models.KindSERP
		if input.Kind != "" {
			k, err := models.ParseDataKind(input.Kind)
			if err != nil {
				return ErrorResult(err.Error(), "Use serp, volume, difficulty or intent"), nil, nil
			}
			kind = k
		}

		sc := deps.Defaults.Context
		if input.LocationCode != 0 {
			sc.LocationCode = input.LocationCode
		}
		if input.LanguageCode != "" {
			sc.LanguageCode = input.LanguageCode
		}
		if input.Device != "" {
			d, err := models.ParseDevice(input.Device)
			if err != nil {
				return ErrorResult(err.Error(), ""), nil, nil
			}
			sc.Device = d
		}

		key := models.NewCacheKey(kind, input.Keyword, sc).String()
		entry, err := deps.Store.Get(ctx, key)
		if err != nil {
			deps.Logger.Warn("cache_lookup failed", "key", key, "error", err)
			return ErrorResult("Cache unavailable: "+err.Error(), ""), nil, nil
		}

		result := CacheLookupResult{Key: key}
		if entry != nil {
			result.Found = true
			result.FetchedAt = entry.FetchedAt.UTC().Format("2006-01-02T15:04:05Z")
			result.Payload = entry.Payload
		}
		return JSONResult(result), nil, nil
	}
}
