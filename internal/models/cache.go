package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const keySep = "|"

// CacheKey identifies one cached payload.
type CacheKey struct {
	Kind    DataKind
	Keyword Keyword
	Context SearchContext
}

// NewCacheKey builds a key, normalizing the keyword and dropping the device
// for kinds that do not depend on it.
func NewCacheKey(kind DataKind, kw string, sc SearchContext) CacheKey {
	if !kind.DeviceSpecific() {
		sc.Device = ""
	}
	return CacheKey{Kind: kind, Keyword: NormalizeKeyword(kw), Context: sc}
}

// String renders kind|keyword|location|language[|device].
func (k CacheKey) String() string {
	parts := []string{
		string(k.Kind),
		k.Keyword,
		strconv.Itoa(k.Context.LocationCode),
		k.Context.LanguageCode,
	}
	if k.Kind.DeviceSpecific() {
		parts = append(parts, string(k.Context.Device))
	}
	return strings.Join(parts, keySep)
}

// ParseCacheKey is the inverse of CacheKey.String.
func ParseCacheKey(s string) (CacheKey, error) {
	parts := strings.Split(s, keySep)
	if len(parts) < 4 {
		return CacheKey{}, fmt.Errorf("malformed cache key: %q", s)
	}
	kind, err := ParseDataKind(parts[0])
	if err != nil {
		return CacheKey{}, err
	}
	loc, err := strconv.Atoi(parts[2])
	if err != nil {
		return CacheKey{}, fmt.Errorf("malformed location in cache key %q: %w", s, err)
	}
	key := CacheKey{
		Kind:    kind,
		Keyword: parts[1],
		Context: SearchContext{LocationCode: loc, LanguageCode: parts[3]},
	}
	if kind.DeviceSpecific() {
		if len(parts) != 5 {
			return CacheKey{}, fmt.Errorf("malformed cache key: %q", s)
		}
		key.Context.Device = Device(parts[4])
	}
	return key, nil
}

// CacheEntry is a stored payload plus the time it was fetched.
type CacheEntry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Age returns how old the entry is relative to now.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
