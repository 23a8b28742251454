package models

import "fmt"

// DataKind identifies what a cache entry or remote task carries.
type DataKind string

const (
	KindSERP       DataKind = "serp"
	KindVolume     DataKind = "volume"
	KindDifficulty DataKind = "difficulty"
	KindIntent     DataKind = "intent"
)

// AllKinds lists every known kind.
var AllKinds = []DataKind{KindSERP, KindVolume, KindDifficulty, KindIntent}

// DefaultMetricsKinds is the metrics set attached to a run unless the caller
// narrows it: volume and CPC, keyword difficulty and search intent.
func DefaultMetricsKinds() []DataKind {
	return []DataKind{KindVolume, KindDifficulty, KindIntent}
}

// ParseDataKind validates a kind name.
func ParseDataKind(s string) (DataKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown data kind: %q", s)
}

// IsMetrics reports whether the kind carries keyword metrics rather than a result set.
func (k DataKind) IsMetrics() bool {
	return k == KindVolume || k == KindDifficulty || k == KindIntent
}

// DeviceSpecific reports whether the device is part of the cache identity.
func (k DataKind) DeviceSpecific() bool {
	return k == KindSERP
}
