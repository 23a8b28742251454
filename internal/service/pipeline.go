// Package service combines fetching and clustering into end-to-end runs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/cluster"
	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

// ErrNoKeywords is returned when a run has nothing to work on.
var ErrNoKeywords = errors.New("no keywords given")

// ErrNoFetcher is returned when a fetching run is requested without API credentials.
var ErrNoFetcher = errors.New("remote fetching is not configured")

// PipelineOptions configures one run.
type PipelineOptions struct {
	Context models.SearchContext
	Policy  fetch.Policy
	Cluster cluster.Config
	// MetricsKinds defaults to models.DefaultMetricsKinds. SkipMetrics
	// disables metrics entirely, leaving input order to pick primaries.
	MetricsKinds []models.DataKind
	SkipMetrics  bool
}

// DefaultPipelineOptions uses the default search context, reuses any cached
// entry and clusters with the default config.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Context:      models.DefaultSearchContext(),
		Policy:       fetch.Policy{Mode: fetch.UseForever},
		Cluster:      cluster.DefaultConfig(),
		MetricsKinds: models.DefaultMetricsKinds(),
	}
}

// Validate checks everything that can be checked before any work starts.
func (o PipelineOptions) Validate() error {
	if err := o.Context.Validate(); err != nil {
		return fmt.Errorf("search context: %w", err)
	}
	if err := o.Cluster.Validate(); err != nil {
		return err
	}
	for _, k := range o.MetricsKinds {
		if !k.IsMetrics() {
			return fmt.Errorf("%s is not a metrics kind", k)
		}
	}
	return nil
}

// Report is the outcome of a pipeline run.
type Report struct {
	Keywords []string                  `json:"keywords" yaml:"keywords"`
	Clusters *cluster.Output           `json:"clusters" yaml:"clusters"`
	Metrics  map[string]models.Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Failures []fetch.Failure           `json:"failures,omitempty" yaml:"failures,omitempty"`
	// Missing lists keywords that had no SERP data in the cache.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Pipeline runs fetch then cluster.
type Pipeline struct {
	fetcher *fetch.Orchestrator
	store   cache.Store
	engine  *cluster.Engine
	log     *slog.Logger
}

// NewPipeline creates a pipeline. fetcher may be nil, in which case only
// ClusterCached is available.
func NewPipeline(fetcher *fetch.Orchestrator, store cache.Store, engine *cluster.Engine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = cluster.NewEngine(logger, nil)
	}
	return &Pipeline{fetcher: fetcher, store: store, engine: engine, log: logger}
}

// CanFetch reports whether Run is available.
func (p *Pipeline) CanFetch() bool {
	return p.fetcher != nil
}

// Run fetches result sets and metrics for keywords, then clusters them.
// Keywords that could not be fetched are reported in Failures and appear as
// NoResults singletons.
func (p *Pipeline) Run(ctx context.Context, keywords []string, opts PipelineOptions, progress fetch.ProgressFunc) (*Report, error) {
	if p.fetcher == nil {
		return nil, ErrNoFetcher
	}
	keywords = models.NormalizeKeywords(keywords)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sets, failures, err := p.fetcher.ResultSets(ctx, keywords, opts.Context, opts.Policy, progress)
	if err != nil {
		return nil, fmt.Errorf("fetch result sets: %w", err)
	}

	var kwMetrics map[string]models.Metrics
	if !opts.SkipMetrics {
		var metricFailures []fetch.Failure
		kwMetrics, metricFailures, err = p.fetcher.Metrics(ctx, keywords, opts.Context, opts.Policy, opts.MetricsKinds, progress)
		if err != nil {
			return nil, fmt.Errorf("fetch metrics: %w", err)
		}
		failures = append(failures, metricFailures...)
	}

	out, err := p.engine.Run(keywords, sets, kwMetrics, opts.Cluster)
	if err != nil {
		return nil, err
	}

	p.log.Info("pipeline finished", "keywords", len(keywords), "clusters", out.Stats.Clusters, "failures", len(failures))
	return &Report{Keywords: keywords, Clusters: out, Metrics: kwMetrics, Failures: failures}, nil
}

// ClusterCached clusters keywords using only cached data. It never calls
// the remote API; keywords without a cached result set are reported in
// Missing and left out of the clusters.
func (p *Pipeline) ClusterCached(ctx context.Context, keywords []string, opts PipelineOptions) (*Report, error) {
	keywords = models.NormalizeKeywords(keywords)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sets := make(map[string]models.ResultSet, len(keywords))
	var found, missing []string
	for _, kw := range keywords {
		var rs models.ResultSet
		ok, err := p.cached(ctx, models.KindSERP, kw, opts, &rs)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, kw)
			continue
		}
		sets[kw] = rs
		found = append(found, kw)
	}

	var kwMetrics map[string]models.Metrics
	if !opts.SkipMetrics {
		kwMetrics = make(map[string]models.Metrics)
		kinds := opts.MetricsKinds
		if len(kinds) == 0 {
			kinds = models.DefaultMetricsKinds()
		}
		for _, kw := range found {
			for _, kind := range kinds {
				var m models.Metrics
				ok, err := p.cached(ctx, kind, kw, opts, &m)
				if err != nil {
					return nil, err
				}
				if ok {
					kwMetrics[kw] = kwMetrics[kw].Merge(m)
				}
			}
		}
	}

	report := &Report{Keywords: keywords, Metrics: kwMetrics, Missing: missing}
	if len(found) > 0 {
		out, err := p.engine.Run(found, sets, kwMetrics, opts.Cluster)
		if err != nil {
			return nil, err
		}
		report.Clusters = out
	} else {
		report.Clusters = &cluster.Output{Config: opts.Cluster, Clusters: []cluster.Cluster{}}
	}

	p.log.Info("cache-only clustering finished", "keywords", len(keywords), "found", len(found), "missing", len(missing))
	return report, nil
}

// cached decodes a usable cache entry into v. Store errors are returned,
// since without the cache there is nothing to cluster.
func (p *Pipeline) cached(ctx context.Context, kind models.DataKind, kw string, opts PipelineOptions, v any) (bool, error) {
	key := models.NewCacheKey(kind, kw, opts.Context).String()
	entry, err := p.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read cache: %w", err)
	}
	policy := opts.Policy
	if policy.Mode == fetch.AlwaysFetch {
		policy = fetch.Policy{Mode: fetch.UseForever}
	}
	if !policy.Usable(entry, timeNow()) {
		return false, nil
	}
	if err := json.Unmarshal(entry.Payload, v); err != nil {
		p.log.Warn("skipping undecodable cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}
