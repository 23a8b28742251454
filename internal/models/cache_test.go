package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyString(t *testing.T) {
	sc := SearchContext{LocationCode: 2840, LanguageCode: "en", Device: DeviceMobile}

	serp := NewCacheKey(KindSERP, " Running Shoes ", sc)
	assert.Equal(t, "serp|running shoes|2840|en|mobile", serp.String())

	vol := NewCacheKey(KindVolume, "running shoes", sc)
	assert.Equal(t, "volume|running shoes|2840|en", vol.String())
}

func TestCacheKeyDeviceOnlyForSERP(t *testing.T) {
	desktop := SearchContext{LocationCode: 2840, LanguageCode: "en", Device: DeviceDesktop}
	mobile := desktop
	mobile.Device = DeviceMobile

	assert.NotEqual(t, NewCacheKey(KindSERP, "kw", desktop), NewCacheKey(KindSERP, "kw", mobile))
	assert.Equal(t, NewCacheKey(KindVolume, "kw", desktop), NewCacheKey(KindVolume, "kw", mobile))
}

func TestParseCacheKey(t *testing.T) {
	sc := SearchContext{LocationCode: 2276, LanguageCode: "de", Device: DeviceDesktop}
	for _, kind := range AllKinds {
		key := NewCacheKey(kind, "laufschuhe", sc)
		parsed, err := ParseCacheKey(key.String())
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	}

	_, err := ParseCacheKey("serp|kw")
	assert.Error(t, err)
	_, err = ParseCacheKey("bogus|kw|1|en")
	assert.Error(t, err)
	_, err = ParseCacheKey("serp|kw|1|en")
	assert.Error(t, err)
}

func TestCacheEntryAge(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	e := CacheEntry{FetchedAt: now.Add(-48 * time.Hour)}
	assert.Equal(t, 48*time.Hour, e.Age(now))
}

func TestResultSetTop(t *testing.T) {
	rs := ResultSet{"a", "b", "c"}
	assert.Equal(t, ResultSet{"a", "b"}, rs.Top(2))
	assert.Equal(t, rs, rs.Top(10))
	assert.Len(t, rs.URLSet(2), 2)
}

func TestMetricsMerge(t *testing.T) {
	vol := Metrics{SearchVolume: Int64(100)}
	kd := Metrics{Difficulty: Int(30), SearchVolume: Int64(5)}

	got := vol.Merge(kd)
	require.NotNil(t, got.SearchVolume)
	assert.Equal(t, int64(100), *got.SearchVolume)
	require.NotNil(t, got.Difficulty)
	assert.Equal(t, 30, *got.Difficulty)
	assert.Nil(t, got.CPC)
	assert.True(t, Metrics{}.IsEmpty())
}

func TestSearchContextValidate(t *testing.T) {
	assert.NoError(t, DefaultSearchContext().Validate())
	assert.Error(t, SearchContext{LanguageCode: "en", Device: DeviceDesktop}.Validate())
	assert.Error(t, SearchContext{LocationCode: 1, Device: DeviceDesktop}.Validate())
	assert.Error(t, SearchContext{LocationCode: 1, LanguageCode: "en", Device: "tablet"}.Validate())

	d, err := ParseDevice("Mobile")
	require.NoError(t, err)
	assert.Equal(t, DeviceMobile, d)
}
