package service

import (
	"fmt"

	"github.com/raphaelgruber/serpcluster/internal/cluster"
	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

// RunRequest is the wire form of a run or cache-only clustering request.
// Zero fields fall back to the server defaults.
type RunRequest struct {
	Keywords         []string `json:"keywords"`
	LocationCode     int      `json:"location_code,omitempty"`
	LanguageCode     string   `json:"language_code,omitempty"`
	Device           string   `json:"device,omitempty"`
	CachePolicy      string   `json:"cache_policy,omitempty"`
	Algorithm        string   `json:"algorithm,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	MinIntersections int      `json:"min_intersections,omitempty"`
	URLsToCheck      int      `json:"urls_to_check,omitempty"`
	Metrics          []string `json:"metrics,omitempty"`
	SkipMetrics      bool     `json:"skip_metrics,omitempty"`
}

// Options overlays the request on defaults and validates the result.
func (r RunRequest) Options(defaults PipelineOptions) (PipelineOptions, error) {
	opts := defaults
	opts.MetricsKinds = append([]models.DataKind(nil), defaults.MetricsKinds...)

	if r.LocationCode != 0 {
		opts.Context.LocationCode = r.LocationCode
	}
	if r.LanguageCode != "" {
		opts.Context.LanguageCode = r.LanguageCode
	}
	if r.Device != "" {
		d, err := models.ParseDevice(r.Device)
		if err != nil {
			return PipelineOptions{}, err
		}
		opts.Context.Device = d
	}
	if r.CachePolicy != "" {
		p, err := fetch.ParsePolicy(r.CachePolicy)
		if err != nil {
			return PipelineOptions{}, err
		}
		opts.Policy = p
	}
	if r.Algorithm != "" {
		a, err := cluster.ParseAlgorithm(r.Algorithm)
		if err != nil {
			return PipelineOptions{}, err
		}
		opts.Cluster.Algorithm = a
	}
	if r.Strategy != "" {
		s, err := cluster.ParseStrategy(r.Strategy)
		if err != nil {
			return PipelineOptions{}, err
		}
		opts.Cluster.Strategy = s
	}
	if r.MinIntersections != 0 {
		opts.Cluster.MinIntersections = r.MinIntersections
	}
	if r.URLsToCheck != 0 {
		opts.Cluster.URLsToCheck = r.URLsToCheck
	}
	if len(r.Metrics) > 0 {
		opts.MetricsKinds = opts.MetricsKinds[:0]
		for _, name := range r.Metrics {
			k, err := models.ParseDataKind(name)
			if err != nil {
				return PipelineOptions{}, err
			}
			if !k.IsMetrics() {
				return PipelineOptions{}, fmt.Errorf("%s is not a metrics kind", k)
			}
			opts.MetricsKinds = append(opts.MetricsKinds, k)
		}
	}
	opts.SkipMetrics = opts.SkipMetrics || r.SkipMetrics

	if err := opts.Validate(); err != nil {
		return PipelineOptions{}, err
	}
	return opts, nil
}
