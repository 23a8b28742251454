package cluster

import (
	"cmp"
	"slices"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// Rank orders keywords from most to least important under strategy.
// Keywords without the ranking metric follow in input order.
func Rank(keywords []string, metrics map[string]models.Metrics, strategy Strategy) []string {
	var ranked, rest []string
	for _, kw := range keywords {
		if hasRankingMetric(metrics[kw], strategy) {
			ranked = append(ranked, kw)
		} else {
			rest = append(rest, kw)
		}
	}

	compare := compareVolume
	if strategy == StrategyCPC {
		compare = compareCPC
	}
	slices.SortStableFunc(ranked, func(a, b string) int {
		return compare(a, metrics[a], b, metrics[b])
	})
	return append(ranked, rest...)
}

func hasRankingMetric(m models.Metrics, strategy Strategy) bool {
	if strategy == StrategyCPC {
		return m.CPC != nil
	}
	return m.SearchVolume != nil
}

// compareVolume: volume desc, difficulty asc (absent last), keyword asc.
func compareVolume(a string, ma models.Metrics, b string, mb models.Metrics) int {
	if c := cmp.Compare(*mb.SearchVolume, *ma.SearchVolume); c != 0 {
		return c
	}
	if c := compareDifficulty(ma.Difficulty, mb.Difficulty); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// compareCPC: cpc desc, volume desc (absent last), keyword asc.
func compareCPC(a string, ma models.Metrics, b string, mb models.Metrics) int {
	if c := cmp.Compare(*mb.CPC, *ma.CPC); c != 0 {
		return c
	}
	if c := cmp.Compare(volumeOrNegative(mb), volumeOrNegative(ma)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

func compareDifficulty(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

func volumeOrNegative(m models.Metrics) int64 {
	if m.SearchVolume == nil {
		return -1
	}
	return *m.SearchVolume
}
