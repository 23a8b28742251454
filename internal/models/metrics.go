package models

// Metrics is the per-keyword numeric bundle. Any field may be absent.
type Metrics struct {
	SearchVolume *int64   `json:"search_volume,omitempty" yaml:"search_volume,omitempty"`
	CPC          *float64 `json:"cpc,omitempty" yaml:"cpc,omitempty"`
	Difficulty   *int     `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Intent       *string  `json:"intent,omitempty" yaml:"intent,omitempty"`
}

// Merge returns m with every absent field filled from other.
func (m Metrics) Merge(other Metrics) Metrics {
	if m.SearchVolume == nil {
		m.SearchVolume = other.SearchVolume
	}
	if m.CPC == nil {
		m.CPC = other.CPC
	}
	if m.Difficulty == nil {
		m.Difficulty = other.Difficulty
	}
	if m.Intent == nil {
		m.Intent = other.Intent
	}
	return m
}

// IsEmpty reports whether no field is set.
func (m Metrics) IsEmpty() bool {
	return m.SearchVolume == nil && m.CPC == nil && m.Difficulty == nil && m.Intent == nil
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
