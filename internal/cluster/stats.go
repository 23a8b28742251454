package cluster

import "github.com/raphaelgruber/serpcluster/internal/models"

// Stats summarizes a clustering run.
type Stats struct {
	Clusters      int     `json:"clusters" yaml:"clusters"`
	Keywords      int     `json:"keywords" yaml:"keywords"`
	AverageSize   float64 `json:"average_size" yaml:"average_size"`
	Singletons    int     `json:"singletons" yaml:"singletons"`
	LargeClusters int     `json:"large_clusters" yaml:"large_clusters"`
	Largest       int     `json:"largest" yaml:"largest"`
	NoResults     int     `json:"no_results" yaml:"no_results"`
}

func computeStats(clusters []Cluster) Stats {
	var s Stats
	s.Clusters = len(clusters)
	for _, c := range clusters {
		n := c.Size()
		s.Keywords += n
		if n == 1 {
			s.Singletons++
		}
		if n >= LargeClusterSize {
			s.LargeClusters++
		}
		if n > s.Largest {
			s.Largest = n
		}
		if c.NoResults {
			s.NoResults++
		}
	}
	if s.Clusters > 0 {
		s.AverageSize = float64(s.Keywords) / float64(s.Clusters)
	}
	return s
}

// Summary aggregates member metrics for one cluster. Averages skip members
// without the value and are nil when no member has it.
type Summary struct {
	TotalVolume          int64    `json:"total_volume" yaml:"total_volume"`
	AverageCPC           *float64 `json:"average_cpc,omitempty" yaml:"average_cpc,omitempty"`
	AverageDifficulty    *float64 `json:"average_difficulty,omitempty" yaml:"average_difficulty,omitempty"`
	AverageIntersections float64  `json:"average_intersections" yaml:"average_intersections"`
	// PrimaryIntent is the most common intent; ties go to the alphabetically first.
	PrimaryIntent string `json:"primary_intent,omitempty" yaml:"primary_intent,omitempty"`
}

func summarize(members []Member) Summary {
	var (
		s                 Summary
		cpcSum, kdSum     float64
		cpcN, kdN, shared int
	)
	intents := map[string]int{}
	for _, m := range members {
		shared += m.Intersections
		if m.Metrics == nil {
			continue
		}
		if v := m.Metrics.SearchVolume; v != nil {
			s.TotalVolume += *v
		}
		if v := m.Metrics.CPC; v != nil {
			cpcSum += *v
			cpcN++
		}
		if v := m.Metrics.Difficulty; v != nil {
			kdSum += float64(*v)
			kdN++
		}
		if v := m.Metrics.Intent; v != nil && *v != "" {
			intents[*v]++
		}
	}

	if len(members) > 0 {
		s.AverageIntersections = float64(shared) / float64(len(members))
	}
	if cpcN > 0 {
		s.AverageCPC = models.Float64(cpcSum / float64(cpcN))
	}
	if kdN > 0 {
		s.AverageDifficulty = models.Float64(kdSum / float64(kdN))
	}
	best := 0
	for _, intent := range sortedKeys(intents) {
		if intents[intent] > best {
			s.PrimaryIntent, best = intent, intents[intent]
		}
	}
	return s
}
