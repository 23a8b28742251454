package cluster

import (
	"maps"
	"slices"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

type builder struct {
	cfg      Config
	ov       *overlap
	metrics  map[string]models.Metrics
	clusters []*Cluster
}

// place assigns kw to the first admitting cluster or opens a new one.
func (b *builder) place(kw string) {
	for _, c := range b.clusters {
		if c.NoResults || !b.admits(c, kw) {
			continue
		}
		c.Members = append(c.Members, b.member(kw, b.ov.count(c.Primary, kw)))
		return
	}
	b.open(kw)
}

func (b *builder) open(kw string) *Cluster {
	c := &Cluster{
		ID:      len(b.clusters) + 1,
		Primary: kw,
		Members: []Member{b.member(kw, len(b.ov.sets[kw]))},
	}
	b.clusters = append(b.clusters, c)
	return c
}

func (b *builder) member(kw string, intersections int) Member {
	m := Member{Keyword: kw, Intersections: intersections}
	if km, ok := b.metrics[kw]; ok && !km.IsEmpty() {
		m.Metrics = &km
	}
	return m
}

func (b *builder) admits(c *Cluster, kw string) bool {
	switch b.cfg.Algorithm {
	case AlgorithmStrict:
		return b.linkedCount(c, kw) == c.Size()
	case AlgorithmBalancedStrict:
		return b.linkedCount(c, kw)*100 >= requiredPercent(c.Size())*c.Size()
	default:
		return b.ov.linked(c.Primary, kw)
	}
}

func (b *builder) linkedCount(c *Cluster, kw string) int {
	n := 0
	for _, m := range c.Members {
		if b.ov.linked(m.Keyword, kw) {
			n++
		}
	}
	return n
}

// requiredPercent is the share of current members a candidate must be
// linked to under balanced strict clustering.
func requiredPercent(size int) int {
	switch {
	case size <= 5:
		return 100
	case size <= 10:
		return 80
	default:
		return 60
	}
}

func (b *builder) finish() []Cluster {
	out := make([]Cluster, len(b.clusters))
	for i, c := range b.clusters {
		c.Singleton = c.Size() == 1
		c.Summary = summarize(c.Members)
		out[i] = *c
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
