// Package fetch acquires SERP result sets and keyword metrics in bulk,
// cache-first, through the remote task API.
//
// A Run partitions keywords into cache hits and misses, submits the misses in
// batches, polls each batch until every keyword resolves or the batch times
// out, and writes each result to the cache as soon as it arrives. Partial
// failure never aborts a run: every keyword ends up either with a payload or
// with a recorded Failure.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/remote"
)

// TaskClient submits and polls asynchronous remote tasks.
type TaskClient interface {
	Submit(ctx context.Context, kind models.DataKind, keywords []string, sc models.SearchContext) (*remote.Submission, error)
	Poll(ctx context.Context, kind models.DataKind, taskIDs []string) (map[string]remote.TaskResult, error)
}

// LiveClient resolves metrics kinds synchronously.
type LiveClient interface {
	FetchLive(ctx context.Context, kind models.DataKind, keywords []string, sc models.SearchContext) (map[string]json.RawMessage, error)
}

// Options tunes batching and polling.
type Options struct {
	PollInterval  time.Duration
	SERPTimeout   time.Duration
	VolumeTimeout time.Duration
	// RetryDelay is the pause before the single retry of a transient submit failure.
	RetryDelay time.Duration
	// Concurrency is the number of batches in flight. Default 1.
	Concurrency      int
	SERPBatchSize    int
	MetricsBatchSize int

	Clock   Clock
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// DefaultOptions mirrors the remote API's pacing: poll every 15s, give SERP
// batches 5 minutes and volume batches 3 minutes.
func DefaultOptions() Options {
	return Options{
		PollInterval:     15 * time.Second,
		SERPTimeout:      5 * time.Minute,
		VolumeTimeout:    3 * time.Minute,
		RetryDelay:       5 * time.Second,
		Concurrency:      1,
		SERPBatchSize:    remote.MaxSERPBatch,
		MetricsBatchSize: remote.MaxVolumeBatch,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.SERPTimeout <= 0 {
		o.SERPTimeout = d.SERPTimeout
	}
	if o.VolumeTimeout <= 0 {
		o.VolumeTimeout = d.VolumeTimeout
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.SERPBatchSize <= 0 || o.SERPBatchSize > remote.MaxSERPBatch {
		o.SERPBatchSize = d.SERPBatchSize
	}
	if o.MetricsBatchSize <= 0 || o.MetricsBatchSize > remote.MaxVolumeBatch {
		o.MetricsBatchSize = d.MetricsBatchSize
	}
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Request describes one Run.
type Request struct {
	Kind     models.DataKind
	Keywords []string
	Context  models.SearchContext
	Policy   Policy
	Progress ProgressFunc
}

// Orchestrator runs bulk fetches. It holds no per-run state and may serve
// several runs concurrently.
type Orchestrator struct {
	store cache.Store
	tasks TaskClient
	live  LiveClient
	opts  Options
	log   *slog.Logger
}

// New creates an orchestrator. live may be nil when difficulty and intent are not needed.
func New(store cache.Store, tasks TaskClient, live LiveClient, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		store: store,
		tasks: tasks,
		live:  live,
		opts:  opts,
		log:   opts.Logger,
	}
}

// Run fetches payloads for req.Keywords. The returned error is non-nil only
// for an invalid request; keyword-level problems are reported in Result.Failures.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if _, err := models.ParseDataKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if err := req.Context.Validate(); err != nil {
		return nil, fmt.Errorf("search context: %w", err)
	}
	if req.Kind.IsMetrics() && req.Kind != models.KindVolume && o.live == nil {
		return nil, fmt.Errorf("no live client configured for %s", req.Kind)
	}

	keywords := models.NormalizeKeywords(req.Keywords)
	result := newResult(req.Kind)
	progress := &counter{total: len(keywords), kind: req.Kind, progress: req.Progress}

	misses := o.partition(ctx, req, keywords, result)
	progress.add(len(result.FromCache), PhaseCache,
		fmt.Sprintf("%d cached, %d to fetch", len(result.FromCache), len(misses)))

	if len(misses) == 0 {
		o.log.Info("all keywords served from cache", "kind", req.Kind, "keywords", len(keywords))
		progress.add(0, PhaseDone, "done")
		return result, nil
	}

	batches := chunk(misses, o.batchSize(req.Kind))
	o.log.Info("fetching missing keywords",
		"kind", req.Kind, "misses", len(misses), "batches", len(batches), "policy", req.Policy.String())

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.opts.Concurrency)

	for i, batch := range batches {
		bt := newBulkTask(uuid.New().String()[:8], req.Kind, batch, o.opts.Clock.Now(), o.timeout(req.Kind))
		g.Go(func() error {
			var out *batchOutcome
			if req.Kind == models.KindSERP || req.Kind == models.KindVolume {
				out = o.runTaskBatch(ctx, bt, req.Context, progress, i+1, len(batches))
			} else {
				out = o.runLiveBatch(ctx, bt, req.Context, progress)
			}

			mu.Lock()
			defer mu.Unlock()
			for kw, p := range out.payloads {
				result.Payloads[kw] = p
			}
			result.Failures = append(result.Failures, out.failures...)
			result.Tasks = append(result.Tasks, out.summary)
			return nil
		})
	}
	_ = g.Wait()

	// Keep Fetched in input order.
	for _, kw := range misses {
		if _, ok := result.Payloads[kw]; ok {
			result.Fetched = append(result.Fetched, kw)
		}
	}

	o.opts.Metrics.Add(metrics.CounterKeywordFetch, int64(len(result.Fetched)))
	o.opts.Metrics.Add(metrics.CounterKeywordFailed, int64(len(result.Failures)))
	o.log.Info("fetch finished",
		"kind", req.Kind,
		"cached", len(result.FromCache),
		"fetched", len(result.Fetched),
		"failed", len(result.Failures))
	progress.add(0, PhaseDone, "done")
	return result, nil
}

// partition serves usable cache entries into result and returns the misses.
// A cache error counts as a miss.
func (o *Orchestrator) partition(ctx context.Context, req Request, keywords []string, result *Result) []string {
	now := o.opts.Clock.Now()
	var misses []string
	for _, kw := range keywords {
		key := models.NewCacheKey(req.Kind, kw, req.Context).String()
		entry, err := o.store.Get(ctx, key)
		if err != nil {
			o.log.Warn("cache read failed, treating as miss", "key", key, "error", err)
			entry = nil
		}
		if req.Policy.Usable(entry, now) {
			result.Payloads[kw] = entry.Payload
			result.FromCache = append(result.FromCache, kw)
			o.opts.Metrics.Add(metrics.CounterCacheHit, 1)
			o.log.Debug("cache hit", "key", key)
			continue
		}
		o.opts.Metrics.Add(metrics.CounterCacheMiss, 1)
		o.log.Debug("cache miss", "key", key)
		misses = append(misses, kw)
	}
	return misses
}

func (o *Orchestrator) batchSize(kind models.DataKind) int {
	if kind == models.KindSERP {
		return o.opts.SERPBatchSize
	}
	return o.opts.MetricsBatchSize
}

func (o *Orchestrator) timeout(kind models.DataKind) time.Duration {
	if kind == models.KindSERP {
		return o.opts.SERPTimeout
	}
	return o.opts.VolumeTimeout
}

// save writes one payload. A failed write is logged and the payload is still returned.
func (o *Orchestrator) save(ctx context.Context, kind models.DataKind, kw string, sc models.SearchContext, payload json.RawMessage) {
	key := models.NewCacheKey(kind, kw, sc).String()
	entry := models.CacheEntry{Key: key, Payload: payload, FetchedAt: o.opts.Clock.Now()}
	if err := o.store.Put(ctx, entry); err != nil {
		o.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// submit posts a batch, retrying once on a transient failure.
func (o *Orchestrator) submit(ctx context.Context, bt *BulkTask, sc models.SearchContext) (*remote.Submission, error) {
	sub, err := o.tasks.Submit(ctx, bt.Kind, bt.Keywords, sc)
	if err == nil || !remote.IsTransient(err) {
		return sub, err
	}

	o.log.Warn("submit failed, retrying once", "batch", bt.ID, "kind", bt.Kind, "error", err)
	if sleepErr := o.opts.Clock.Sleep(ctx, o.opts.RetryDelay); sleepErr != nil {
		return nil, sleepErr
	}
	return o.tasks.Submit(ctx, bt.Kind, bt.Keywords, sc)
}

func (o *Orchestrator) runTaskBatch(ctx context.Context, bt *BulkTask, sc models.SearchContext, progress *counter, n, total int) *batchOutcome {
	out := &batchOutcome{payloads: make(map[string]json.RawMessage)}
	defer func() {
		out.summary = TaskSummary{ID: bt.ID, Kind: string(bt.Kind), Keywords: len(bt.Keywords), Status: bt.Status}
	}()

	log := o.log.With("batch", bt.ID, "kind", bt.Kind)

	sub, err := o.submit(ctx, bt, sc)
	if err != nil {
		reason := ReasonSubmitFailed
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		log.Error("batch submit failed", "keywords", len(bt.Keywords), "error", err)
		o.move(bt, TaskFailed)
		out.fail(bt.Kind, bt.Keywords, reason, err.Error())
		progress.add(len(bt.Keywords), PhaseSubmit, fmt.Sprintf("batch %d/%d failed", n, total))
		return out
	}

	for _, kw := range bt.Keywords {
		if reason, rejected := sub.Rejected[kw]; rejected {
			out.fail(bt.Kind, []string{kw}, ReasonRejected, reason)
		} else if _, ok := sub.TaskIDs[kw]; !ok {
			out.fail(bt.Kind, []string{kw}, ReasonRejected, "no task id")
		}
	}
	if len(out.failures) > 0 {
		progress.add(len(out.failures), PhaseSubmit, "")
	}

	if err := bt.accept(sub.TaskIDs, o.opts.Clock.Now(), o.timeout(bt.Kind)); err != nil {
		log.Error("accept batch", "error", err)
	}
	log.Info("batch submitted", "batch_num", n, "batches", total, "tasks", len(bt.outstanding))
	progress.add(0, PhaseSubmit, fmt.Sprintf("batch %d/%d submitted", n, total))

	for !bt.done() {
		results, err := o.tasks.Poll(ctx, bt.Kind, bt.pendingTaskIDs())
		for id, res := range results {
			o.applyTaskResult(ctx, bt, sc, id, res, out, progress)
		}
		if bt.done() {
			break
		}

		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			pending := bt.pendingKeywords()
			log.Error("polling failed", "error", err)
			o.move(bt, TaskFailed)
			out.fail(bt.Kind, pending, ReasonTaskFailed, err.Error())
			progress.add(len(pending), PhasePoll, "")
			return out
		}
		if ctx.Err() != nil {
			o.abandon(bt, out, progress, ReasonCancelled, ErrCancelled)
			return out
		}
		if bt.expired(o.opts.Clock.Now()) {
			log.Warn("batch timed out", "pending", len(bt.pendingKeywords()))
			o.abandon(bt, out, progress, ReasonTimedOut, ErrTimedOut)
			o.move(bt, TaskTimedOut)
			return out
		}
		if err := o.opts.Clock.Sleep(ctx, o.opts.PollInterval); err != nil {
			o.abandon(bt, out, progress, ReasonCancelled, ErrCancelled)
			return out
		}
	}

	if err := bt.settle(len(out.payloads), len(out.failures)); err != nil {
		log.Error("settle batch", "error", err)
	}
	log.Info("batch finished", "status", bt.Status, "fetched", len(out.payloads), "failed", len(out.failures))
	return out
}

// move applies a state transition, logging the ones the state machine refuses.
func (o *Orchestrator) move(bt *BulkTask, to TaskStatus) {
	if err := bt.transition(to); err != nil {
		o.log.Error("bulk task transition", "error", err)
	}
}

func (o *Orchestrator) abandon(bt *BulkTask, out *batchOutcome, progress *counter, reason string, cause error) {
	pending := bt.pendingKeywords()
	for _, id := range bt.pendingTaskIDs() {
		bt.resolve(id)
	}
	out.fail(bt.Kind, pending, reason, cause.Error())
	if reason == ReasonCancelled && !bt.Status.Terminal() {
		o.move(bt, TaskFailed)
	}
	progress.add(len(pending), PhasePoll, fmt.Sprintf("%d %s", len(pending), reason))
}

func (o *Orchestrator) applyTaskResult(ctx context.Context, bt *BulkTask, sc models.SearchContext, taskID string, res remote.TaskResult, out *batchOutcome, progress *counter) {
	switch res.State {
	case remote.TaskPending:
		return
	case remote.TaskFailed:
		kws := bt.resolve(taskID)
		out.fail(bt.Kind, kws, ReasonTaskFailed, res.Reason)
		progress.add(len(kws), PhasePoll, "")
		return
	}

	kws := bt.resolve(taskID)
	for _, kw := range kws {
		payload, ok := res.Payloads[kw]
		if !ok && len(kws) == 1 && len(res.Payloads) == 1 {
			for _, p := range res.Payloads {
				payload, ok = p, true
			}
		}
		if !ok && bt.Kind.IsMetrics() {
			payload, ok = json.RawMessage(`{}`), true
		}
		if !ok {
			out.fail(bt.Kind, []string{kw}, ReasonMissing, "task completed without data for keyword")
			continue
		}
		o.save(ctx, bt.Kind, kw, sc, payload)
		out.payloads[kw] = payload
	}
	progress.add(len(kws), PhasePoll, "")
}

func (o *Orchestrator) runLiveBatch(ctx context.Context, bt *BulkTask, sc models.SearchContext, progress *counter) *batchOutcome {
	out := &batchOutcome{payloads: make(map[string]json.RawMessage)}
	log := o.log.With("batch", bt.ID, "kind", bt.Kind)

	payloads, err := o.live.FetchLive(ctx, bt.Kind, bt.Keywords, sc)
	if err != nil && remote.IsTransient(err) && ctx.Err() == nil {
		log.Warn("live fetch failed, retrying once", "error", err)
		if sleepErr := o.opts.Clock.Sleep(ctx, o.opts.RetryDelay); sleepErr == nil {
			payloads, err = o.live.FetchLive(ctx, bt.Kind, bt.Keywords, sc)
		} else {
			err = sleepErr
		}
	}
	if err != nil {
		reason := ReasonSubmitFailed
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		log.Error("live fetch failed", "error", err)
		o.move(bt, TaskFailed)
		out.fail(bt.Kind, bt.Keywords, reason, err.Error())
	} else {
		for _, kw := range bt.Keywords {
			payload, ok := payloads[kw]
			if !ok {
				payload = json.RawMessage(`{}`)
			}
			o.save(ctx, bt.Kind, kw, sc, payload)
			out.payloads[kw] = payload
		}
		o.move(bt, TaskCompleted)
	}

	out.summary = TaskSummary{ID: bt.ID, Kind: string(bt.Kind), Keywords: len(bt.Keywords), Status: bt.Status}
	progress.add(len(bt.Keywords), PhasePoll, "")
	return out
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
