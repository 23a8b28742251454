package cluster

import "github.com/raphaelgruber/serpcluster/internal/models"

// overlap answers intersection queries over truncated result sets.
type overlap struct {
	sets map[string]map[string]struct{}
	min  int
}

func newOverlap(resultSets map[string]models.ResultSet, keywords []string, cfg Config) *overlap {
	o := &overlap{sets: make(map[string]map[string]struct{}, len(keywords)), min: cfg.MinIntersections}
	for _, kw := range keywords {
		if set := resultSets[kw].URLSet(cfg.URLsToCheck); len(set) > 0 {
			o.sets[kw] = set
		}
	}
	return o
}

// hasResults reports whether kw can take part in overlap clustering.
func (o *overlap) hasResults(kw string) bool {
	return len(o.sets[kw]) > 0
}

// count is the size of the overlap between the top URLs of a and b.
func (o *overlap) count(a, b string) int {
	sa, sb := o.sets[a], o.sets[b]
	if len(sb) < len(sa) {
		sa, sb = sb, sa
	}
	n := 0
	for url := range sa {
		if _, ok := sb[url]; ok {
			n++
		}
	}
	return n
}

func (o *overlap) linked(a, b string) bool {
	return o.count(a, b) >= o.min
}
