package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// ResultSets fetches ranked SERP URLs for keywords.
func (o *Orchestrator) ResultSets(ctx context.Context, keywords []string, sc models.SearchContext, policy Policy, progress ProgressFunc) (map[string]models.ResultSet, []Failure, error) {
	res, err := o.Run(ctx, Request{
		Kind:     models.KindSERP,
		Keywords: keywords,
		Context:  sc,
		Policy:   policy,
		Progress: progress,
	})
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string]models.ResultSet, len(res.Payloads))
	failures := res.Failures
	for kw, payload := range res.Payloads {
		var rs models.ResultSet
		if err := json.Unmarshal(payload, &rs); err != nil {
			failures = append(failures, Failure{Keyword: kw, Kind: models.KindSERP, Reason: ReasonMissing, Detail: fmt.Sprintf("decode payload: %v", err)})
			continue
		}
		out[kw] = rs
	}
	return out, failures, nil
}

// Metrics fetches and merges the requested metrics kinds. Search volume and
// CPC come from the volume kind; difficulty and intent from their live kinds.
// A keyword is present in the map when at least one kind produced data for it.
func (o *Orchestrator) Metrics(ctx context.Context, keywords []string, sc models.SearchContext, policy Policy, kinds []models.DataKind, progress ProgressFunc) (map[string]models.Metrics, []Failure, error) {
	if len(kinds) == 0 {
		kinds = []models.DataKind{models.KindVolume}
	}

	out := make(map[string]models.Metrics)
	var failures []Failure
	for _, kind := range kinds {
		if !kind.IsMetrics() {
			return nil, nil, fmt.Errorf("%s is not a metrics kind", kind)
		}
		res, err := o.Run(ctx, Request{
			Kind:     kind,
			Keywords: keywords,
			Context:  sc,
			Policy:   policy,
			Progress: progress,
		})
		if err != nil {
			return nil, nil, err
		}
		failures = append(failures, res.Failures...)

		for kw, payload := range res.Payloads {
			var m models.Metrics
			if err := json.Unmarshal(payload, &m); err != nil {
				failures = append(failures, Failure{Keyword: kw, Kind: kind, Reason: ReasonMissing, Detail: fmt.Sprintf("decode payload: %v", err)})
				continue
			}
			out[kw] = out[kw].Merge(m)
		}
	}
	return out, failures, nil
}
