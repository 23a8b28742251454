package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

const (
	pathDifficultyLive = "/v3/dataforseo_labs/google/bulk_keyword_difficulty/live"
	pathIntentLive     = "/v3/dataforseo_labs/google/search_intent/live"
)

type livePost struct {
	Keywords     []string `json:"keywords"`
	LocationCode int      `json:"location_code,omitempty"`
	LanguageCode string   `json:"language_code"`
}

type liveResult struct {
	Items []liveItem `json:"items"`
}

type liveItem struct {
	Keyword           string `json:"keyword"`
	KeywordDifficulty *int   `json:"keyword_difficulty"`
	KeywordIntent     *struct {
		Label       string  `json:"label"`
		Probability float64 `json:"probability"`
	} `json:"keyword_intent"`
}

// FetchLive resolves difficulty or intent synchronously. The returned payloads
// are partial models.Metrics keyed by normalized keyword. Keywords the API has
// no data for are absent from the map.
func (c *Client) FetchLive(ctx context.Context, kind models.DataKind, keywords []string, sc models.SearchContext) (out map[string]json.RawMessage, err error) {
	const op = "remote.FetchLive"
	start := time.Now()
	defer func() { c.observe(metrics.OpRemoteLive, start, err) }()

	if err := checkBatch(len(keywords), MaxLiveBatch); err != nil {
		return nil, err
	}

	body := livePost{Keywords: keywords, LanguageCode: sc.LanguageCode}
	var path string
	switch kind {
	case models.KindDifficulty:
		path = pathDifficultyLive
		body.LocationCode = sc.LocationCode
	case models.KindIntent:
		path = pathIntentLive
	default:
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("kind %q has no live endpoint", kind)}
	}

	env, err := c.do(ctx, op, http.MethodPost, path, []livePost{body})
	if err != nil {
		return nil, err
	}
	if len(env.Tasks) == 0 {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("no task returned")}
	}
	task := env.Tasks[0]
	if !isSuccessStatus(task.StatusCode) {
		return nil, classifyAPI(op, task.StatusCode, task.StatusMessage)
	}

	out = make(map[string]json.RawMessage)
	if !task.hasResult() {
		return out, nil
	}

	var results []liveResult
	if err := json.Unmarshal(task.Result, &results); err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("decode live result: %w", err)}
	}

	for _, r := range results {
		for _, item := range r.Items {
			kw := models.NormalizeKeyword(item.Keyword)
			if kw == "" {
				continue
			}
			var m models.Metrics
			if kind == models.KindDifficulty {
				m.Difficulty = item.KeywordDifficulty
			} else if item.KeywordIntent != nil {
				m.Intent = models.String(item.KeywordIntent.Label)
			}
			payload, err := json.Marshal(m)
			if err != nil {
				return nil, err
			}
			out[kw] = payload
		}
	}
	return out, nil
}
