// Package cluster groups keywords whose top search results overlap.
//
// Keywords are ranked once by the configured strategy and then assigned
// first-fit, in rank order, to the first existing cluster that admits them
// under the configured algorithm. A keyword that no cluster admits starts a
// new one as its primary. Each keyword ends up in exactly one cluster.
package cluster

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

// LargeClusterSize is the size from which a cluster counts as large.
const LargeClusterSize = 6

// strictSingletonShare is the share of singletons above which strict
// clustering is reported as too tight.
const strictSingletonShare = 0.5

// Member is one keyword in a cluster.
type Member struct {
	Keyword string `json:"keyword" yaml:"keyword"`
	// Intersections is the overlap with the primary. For the primary itself it
	// is the number of URLs compared.
	Intersections int             `json:"intersections" yaml:"intersections"`
	Metrics       *models.Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Cluster is a group of keywords. Members[0] is the primary.
type Cluster struct {
	ID        int      `json:"id" yaml:"id"`
	Primary   string   `json:"primary" yaml:"primary"`
	Members   []Member `json:"members" yaml:"members"`
	Singleton bool     `json:"singleton" yaml:"singleton"`
	// NoResults marks a keyword that had no result set to compare.
	NoResults bool    `json:"no_results,omitempty" yaml:"no_results,omitempty"`
	Summary   Summary `json:"summary" yaml:"summary"`
}

func (c *Cluster) Size() int { return len(c.Members) }

// Keywords returns the member keywords, primary first.
func (c *Cluster) Keywords() []string {
	out := make([]string, len(c.Members))
	for i, m := range c.Members {
		out[i] = m.Keyword
	}
	return out
}

// Output is the result of a clustering run. Clusters are in creation order.
type Output struct {
	Config   Config    `json:"config" yaml:"config"`
	Clusters []Cluster `json:"clusters" yaml:"clusters"`
	Stats    Stats     `json:"stats" yaml:"stats"`
	Warnings []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Engine runs clustering and reports timing to an optional collector.
type Engine struct {
	log     *slog.Logger
	metrics *metrics.Collector
}

// NewEngine creates an engine. Both arguments may be nil.
func NewEngine(logger *slog.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{log: logger, metrics: collector}
}

// Run clusters keywords with the default engine.
func Run(keywords []string, resultSets map[string]models.ResultSet, kwMetrics map[string]models.Metrics, cfg Config) (*Output, error) {
	return NewEngine(nil, nil).Run(keywords, resultSets, kwMetrics, cfg)
}

// Run clusters keywords. The keyword list fixes the universe and the input
// order; a nil list clusters every key of resultSets in lexicographic order.
// Keywords without a result set become NoResults singletons. kwMetrics may be
// nil, in which case input order decides the primaries.
func (e *Engine) Run(keywords []string, resultSets map[string]models.ResultSet, kwMetrics map[string]models.Metrics, cfg Config) (out *Output, err error) {
	start := time.Now()
	defer func() { e.metrics.Observe(metrics.OpCluster, start, err) }()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if keywords == nil {
		keywords = sortedKeys(resultSets)
	}
	keywords = models.NormalizeKeywords(keywords)
	resultSets = normalizeKeys(resultSets)
	kwMetrics = normalizeKeys(kwMetrics)

	order := Rank(keywords, kwMetrics, cfg.Strategy)
	ov := newOverlap(resultSets, order, cfg)
	b := &builder{cfg: cfg, ov: ov, metrics: kwMetrics}

	var noResults []string
	for _, kw := range order {
		if !ov.hasResults(kw) {
			noResults = append(noResults, kw)
			continue
		}
		b.place(kw)
	}
	for _, kw := range noResults {
		b.open(kw).NoResults = true
	}

	out = &Output{Config: cfg, Clusters: b.finish()}
	out.Stats = computeStats(out.Clusters)
	out.Warnings = warnings(cfg, out.Stats)

	e.log.Info("clustering finished",
		"algorithm", cfg.Algorithm,
		"strategy", cfg.Strategy,
		"keywords", out.Stats.Keywords,
		"clusters", out.Stats.Clusters,
		"singletons", out.Stats.Singletons)
	for _, w := range out.Warnings {
		e.log.Warn(w)
	}
	return out, nil
}

func warnings(cfg Config, s Stats) []string {
	var out []string
	if cfg.Algorithm == AlgorithmStrict && s.Clusters > 0 && float64(s.Singletons) > float64(s.Clusters)*strictSingletonShare {
		out = append(out, fmt.Sprintf("strict clustering produced %d single-keyword clusters out of %d; consider balanced_strict or a lower min_intersections", s.Singletons, s.Clusters))
	}
	if s.NoResults > 0 {
		out = append(out, fmt.Sprintf("%d keywords had no search results and were left unclustered", s.NoResults))
	}
	return out
}

// normalizeKeys rekeys in by normalized keyword. On collision an already
// normalized key wins, then the lexicographically first original.
func normalizeKeys[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for _, k := range sortedKeys(in) {
		nk := models.NormalizeKeyword(k)
		if _, exists := out[nk]; exists && nk != k {
			continue
		}
		out[nk] = in[k]
	}
	return out
}
