package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

const (
	pathSERPPost   = "/v3/serp/google/organic/task_post"
	pathSERPGet    = "/v3/serp/google/organic/task_get/advanced/"
	pathVolumePost = "/v3/keywords_data/google_ads/search_volume/task_post"
	pathVolumeGet  = "/v3/keywords_data/google_ads/search_volume/task_get/"
)

// TaskState is the lifecycle state of a remote task as seen by one poll.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskReady
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskReady:
		return "ready"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskResult is the outcome of polling one task.
type TaskResult struct {
	State TaskState
	// Payloads maps normalized keyword to its JSON payload: a models.ResultSet
	// for SERP tasks, a partial models.Metrics for metrics tasks.
	Payloads map[string]json.RawMessage
	Reason   string
}

// Submission is the outcome of posting a batch.
type Submission struct {
	// TaskIDs maps each accepted keyword to the task that will carry its data.
	TaskIDs map[string]string
	// Rejected maps keywords the API refused to the reason given.
	Rejected map[string]string
}

type serpTaskPost struct {
	Keyword      string `json:"keyword"`
	LocationCode int    `json:"location_code"`
	LanguageCode string `json:"language_code"`
	Device       string `json:"device"`
	Depth        int    `json:"depth"`
	Tag          string `json:"tag"`
}

type volumeTaskPost struct {
	Keywords     []string `json:"keywords"`
	LocationCode int      `json:"location_code"`
	LanguageCode string   `json:"language_code"`
}

// Submit posts a batch of keywords for the given kind. SERP batches create one
// task per keyword; volume batches create a single task shared by all keywords.
func (c *Client) Submit(ctx context.Context, kind models.DataKind, keywords []string, sc models.SearchContext) (sub *Submission, err error) {
	const op = "remote.Submit"
	start := time.Now()
	defer func() { c.observe(metrics.OpRemoteSubmit, start, err) }()

	switch kind {
	case models.KindSERP:
		if err := checkBatch(len(keywords), MaxSERPBatch); err != nil {
			return nil, err
		}
		return c.submitSERP(ctx, op, keywords, sc)
	case models.KindVolume:
		if err := checkBatch(len(keywords), MaxVolumeBatch); err != nil {
			return nil, err
		}
		return c.submitVolume(ctx, op, keywords, sc)
	default:
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("kind %q has no task endpoint", kind)}
	}
}

func checkBatch(n, limit int) error {
	if n == 0 || n > limit {
		return fmt.Errorf("%w: %d keywords (limit %d)", ErrInvalidBatchSize, n, limit)
	}
	return nil
}

func (c *Client) submitSERP(ctx context.Context, op string, keywords []string, sc models.SearchContext) (*Submission, error) {
	body := make([]serpTaskPost, len(keywords))
	for i, kw := range keywords {
		body[i] = serpTaskPost{
			Keyword:      kw,
			LocationCode: sc.LocationCode,
			LanguageCode: sc.LanguageCode,
			Device:       string(sc.Device),
			Depth:        c.depth,
			Tag:          kw,
		}
	}

	env, err := c.do(ctx, op, http.MethodPost, pathSERPPost, body)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		requested[kw] = true
	}

	sub := &Submission{TaskIDs: make(map[string]string), Rejected: make(map[string]string)}
	for i, task := range env.Tasks {
		kw := models.NormalizeKeyword(task.Data.Tag)
		if !requested[kw] {
			kw = models.NormalizeKeyword(task.Data.Keyword)
		}
		if !requested[kw] && i < len(keywords) {
			kw = keywords[i]
		}
		if !requested[kw] {
			continue
		}
		if !isSuccessStatus(task.StatusCode) || task.ID == "" {
			sub.Rejected[kw] = fmt.Sprintf("task rejected: %d %s", task.StatusCode, task.StatusMessage)
			continue
		}
		sub.TaskIDs[kw] = task.ID
	}

	for _, kw := range keywords {
		if _, ok := sub.TaskIDs[kw]; ok {
			continue
		}
		if _, ok := sub.Rejected[kw]; !ok {
			sub.Rejected[kw] = "no task returned"
		}
	}

	c.logger.Info("posted serp tasks", "accepted", len(sub.TaskIDs), "rejected", len(sub.Rejected))
	return sub, nil
}

func (c *Client) submitVolume(ctx context.Context, op string, keywords []string, sc models.SearchContext) (*Submission, error) {
	body := []volumeTaskPost{{
		Keywords:     keywords,
		LocationCode: sc.LocationCode,
		LanguageCode: sc.LanguageCode,
	}}

	env, err := c.do(ctx, op, http.MethodPost, pathVolumePost, body)
	if err != nil {
		return nil, err
	}
	if len(env.Tasks) == 0 {
		return nil, &TransientError{Op: op, Err: errors.New("no task returned")}
	}
	task := env.Tasks[0]
	if !isSuccessStatus(task.StatusCode) || task.ID == "" {
		return nil, classifyAPI(op, task.StatusCode, task.StatusMessage)
	}

	sub := &Submission{TaskIDs: make(map[string]string, len(keywords)), Rejected: map[string]string{}}
	for _, kw := range keywords {
		sub.TaskIDs[kw] = task.ID
	}

	c.logger.Info("posted search volume task", "task_id", task.ID, "keywords", len(keywords))
	return sub, nil
}

// Poll fetches the current state of each task. Transient failures leave a task
// pending so the next poll cycle retries it. Only context cancellation is
// returned as an error, together with whatever was collected so far.
func (c *Client) Poll(ctx context.Context, kind models.DataKind, taskIDs []string) (map[string]TaskResult, error) {
	const op = "remote.Poll"

	var path string
	switch kind {
	case models.KindSERP:
		path = pathSERPGet
	case models.KindVolume:
		path = pathVolumeGet
	default:
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("kind %q has no task endpoint", kind)}
	}

	out := make(map[string]TaskResult, len(taskIDs))
	for _, id := range taskIDs {
		if _, done := out[id]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		start := time.Now()
		env, err := c.do(ctx, op, http.MethodGet, path+id, nil)
		c.observe(metrics.OpRemotePoll, start, err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			if IsTransient(err) {
				c.logger.Warn("poll failed, will retry", "task_id", id, "error", err)
				out[id] = TaskResult{State: TaskPending, Reason: err.Error()}
				continue
			}
			out[id] = TaskResult{State: TaskFailed, Reason: err.Error()}
			continue
		}

		out[id] = c.taskResult(kind, env)
	}
	return out, nil
}

func (c *Client) taskResult(kind models.DataKind, env *envelope) TaskResult {
	if len(env.Tasks) == 0 {
		return TaskResult{State: TaskPending}
	}
	task := env.Tasks[0]

	switch {
	case isPendingStatus(task.StatusCode):
		return TaskResult{State: TaskPending}
	case !isSuccessStatus(task.StatusCode):
		return TaskResult{State: TaskFailed, Reason: fmt.Sprintf("task failed: %d %s", task.StatusCode, task.StatusMessage)}
	case !task.hasResult():
		return TaskResult{State: TaskPending}
	}

	var (
		payloads map[string]json.RawMessage
		err      error
	)
	if kind == models.KindSERP {
		payloads, err = parseSERPResult(task)
	} else {
		payloads, err = parseVolumeResult(task)
	}
	if err != nil {
		return TaskResult{State: TaskFailed, Reason: err.Error()}
	}
	return TaskResult{State: TaskReady, Payloads: payloads}
}

type serpResult struct {
	Keyword string     `json:"keyword"`
	Items   []serpItem `json:"items"`
}

type serpItem struct {
	Type      string `json:"type"`
	RankGroup int    `json:"rank_group"`
	URL       string `json:"url"`
}

func parseSERPResult(task taskEnvelope) (map[string]json.RawMessage, error) {
	var results []serpResult
	if err := json.Unmarshal(task.Result, &results); err != nil {
		return nil, fmt.Errorf("decode serp result: %w", err)
	}

	kw := models.NormalizeKeyword(task.Data.Tag)
	if kw == "" {
		kw = models.NormalizeKeyword(task.Data.Keyword)
	}
	if kw == "" && len(results) > 0 {
		kw = models.NormalizeKeyword(results[0].Keyword)
	}

	urls := models.ResultSet{}
	for _, r := range results {
		for _, item := range r.Items {
			if item.Type == "organic" && item.URL != "" {
				urls = append(urls, item.URL)
			}
		}
	}

	payload, err := json.Marshal(urls)
	if err != nil {
		return nil, err
	}
	return map[string]json.RawMessage{kw: payload}, nil
}

type volumeItem struct {
	Keyword      string   `json:"keyword"`
	SearchVolume *int64   `json:"search_volume"`
	CPC          *float64 `json:"cpc"`
}

func parseVolumeResult(task taskEnvelope) (map[string]json.RawMessage, error) {
	var items []volumeItem
	if err := json.Unmarshal(task.Result, &items); err != nil {
		return nil, fmt.Errorf("decode volume result: %w", err)
	}

	out := make(map[string]json.RawMessage, len(items))
	for _, item := range items {
		kw := models.NormalizeKeyword(item.Keyword)
		if kw == "" {
			continue
		}
		payload, err := json.Marshal(models.Metrics{SearchVolume: item.SearchVolume, CPC: item.CPC})
		if err != nil {
			return nil, err
		}
		out[kw] = payload
	}
	return out, nil
}
