package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/remote"
)

func newTestOrchestrator(store cache.Store, tasks TaskClient, clock Clock) *Orchestrator {
	opts := DefaultOptions()
	opts.Clock = clock
	return New(store, tasks, &fakeLive{}, opts)
}

// assertPartition checks that every keyword is in exactly one of payloads or failures.
func assertPartition(t *testing.T, keywords []string, res *Result) {
	t.Helper()
	failed := map[string]int{}
	for _, f := range res.Failures {
		failed[f.Keyword]++
	}
	for _, kw := range keywords {
		_, ok := res.Payloads[kw]
		n := failed[kw]
		assert.True(t, (ok && n == 0) || (!ok && n == 1), "keyword %q: payload=%v failures=%d", kw, ok, n)
	}
	assert.Equal(t, len(keywords), len(res.Payloads)+len(res.Failures))
}

func cachedKeys(t *testing.T, store *cache.Memory, prefix string) []string {
	t.Helper()
	entries, err := store.List(context.Background(), prefix, 0)
	require.NoError(t, err)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func TestRunFetchesAndWritesThrough(t *testing.T) {
	store := cache.NewMemory()
	tasks := newFakeTasks()
	clock := newManualClock()
	o := newTestOrchestrator(store, tasks, clock)

	keywords := []string{"running shoes", "trail shoes", "boots"}
	res, err := o.Run(context.Background(), Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assertPartition(t, keywords, res)
	assert.Empty(t, res.Failures)
	assert.Empty(t, res.FromCache)
	assert.Equal(t, keywords, res.Fetched)
	assert.Equal(t, 3, store.Len())
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, TaskCompleted, res.Tasks[0].Status)

	entry, err := store.Get(context.Background(), models.NewCacheKey(models.KindSERP, "boots", testContext).String())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, epoch, entry.FetchedAt)
}

func TestUseForeverRerunMakesNoRemoteCalls(t *testing.T) {
	store := cache.NewMemory()
	keywords := []string{"a", "b", "c"}

	first := newFakeTasks()
	_, err := newTestOrchestrator(store, first, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)
	require.Positive(t, first.remoteCalls())

	second := newFakeTasks()
	clock := newManualClock()
	clock.now = epoch.Add(365 * 24 * time.Hour)
	res, err := newTestOrchestrator(store, second, clock).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assert.Zero(t, second.remoteCalls())
	assert.Equal(t, keywords, res.FromCache)
	assertPartition(t, keywords, res)
}

func TestAlwaysFetchIgnoresCacheButWrites(t *testing.T) {
	store := cache.NewMemory()
	key := models.NewCacheKey(models.KindSERP, "a", testContext).String()
	require.NoError(t, store.Put(context.Background(), models.CacheEntry{Key: key, Payload: []byte(`["old"]`), FetchedAt: epoch}))

	tasks := newFakeTasks()
	res, err := newTestOrchestrator(store, tasks, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: []string{"a"}, Context: testContext, Policy: Policy{Mode: AlwaysFetch}})
	require.NoError(t, err)

	assert.Equal(t, 1, tasks.submits)
	assert.JSONEq(t, string(serpPayload("a")), string(res.Payloads["a"]))

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.JSONEq(t, string(serpPayload("a")), string(entry.Payload))
}

func TestFreshWithinWindow(t *testing.T) {
	tests := []struct {
		name       string
		policy     string
		wantCached bool
	}{
		{"inside window", "fresh-within:30", true},
		{"outside window", "fresh-within:7", false},
		{"hours", "fresh-within:240h", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cache.NewMemory()
			key := models.NewCacheKey(models.KindSERP, "a", testContext).String()
			require.NoError(t, store.Put(context.Background(), models.CacheEntry{
				Key: key, Payload: []byte(`["cached"]`), FetchedAt: epoch.Add(-10 * 24 * time.Hour),
			}))

			policy, err := ParsePolicy(tt.policy)
			require.NoError(t, err)

			tasks := newFakeTasks()
			res, err := newTestOrchestrator(store, tasks, newManualClock()).Run(context.Background(),
				Request{Kind: models.KindSERP, Keywords: []string{"a"}, Context: testContext, Policy: policy})
			require.NoError(t, err)

			if tt.wantCached {
				assert.Equal(t, []string{"a"}, res.FromCache)
				assert.Zero(t, tasks.remoteCalls())
			} else {
				assert.Empty(t, res.FromCache)
				assert.Equal(t, []string{"a"}, res.Fetched)
			}
		})
	}
}

func TestTimeoutKeepsPartialResults(t *testing.T) {
	store := cache.NewMemory()
	tasks := newFakeTasks()
	tasks.readyAfter["slow"] = -1
	tasks.readyAfter["b"] = 2
	clock := newManualClock()
	o := newTestOrchestrator(store, tasks, clock)

	keywords := []string{"a", "b", "slow"}
	res, err := o.Run(context.Background(), Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assertPartition(t, keywords, res)
	assert.Len(t, res.Payloads, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "slow", res.Failures[0].Keyword)
	assert.Equal(t, ReasonTimedOut, res.Failures[0].Reason)
	assert.Equal(t, TaskTimedOut, res.Tasks[0].Status)

	assert.ElementsMatch(t, []string{
		models.NewCacheKey(models.KindSERP, "a", testContext).String(),
		models.NewCacheKey(models.KindSERP, "b", testContext).String(),
	}, cachedKeys(t, store, "serp|"))
	assert.GreaterOrEqual(t, clock.slept, DefaultOptions().SERPTimeout)
}

func TestTimedOutKeywordIsRetriedInNextRun(t *testing.T) {
	store := cache.NewMemory()
	tasks := newFakeTasks()
	tasks.readyAfter["slow"] = -1
	_, err := newTestOrchestrator(store, tasks, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: []string{"a", "slow"}, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	retry := newFakeTasks()
	res, err := newTestOrchestrator(store, retry, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: []string{"a", "slow"}, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, res.FromCache)
	assert.Equal(t, []string{"slow"}, res.Fetched)
	require.Len(t, retry.submitted, 1)
	assert.Equal(t, []string{"slow"}, retry.submitted[0])
}

func TestSubmitRetry(t *testing.T) {
	transient := &remote.TransientError{Op: "submit", Err: errors.New("502")}
	permanent := &remote.PermanentError{Op: "submit", Err: errors.New("401")}

	tests := []struct {
		name        string
		errs        []error
		wantSubmits int
		wantFailed  bool
	}{
		{"transient then success", []error{transient}, 2, false},
		{"transient twice", []error{transient, transient}, 2, true},
		{"permanent", []error{permanent}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := newFakeTasks()
			tasks.submitErrs = tt.errs
			keywords := []string{"a", "b"}

			res, err := newTestOrchestrator(cache.NewMemory(), tasks, newManualClock()).Run(context.Background(),
				Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
			require.NoError(t, err)

			assert.Equal(t, tt.wantSubmits, tasks.submits)
			assertPartition(t, keywords, res)
			if tt.wantFailed {
				require.Len(t, res.Failures, 2)
				assert.Equal(t, ReasonSubmitFailed, res.Failures[0].Reason)
				assert.Equal(t, TaskFailed, res.Tasks[0].Status)
			} else {
				assert.Empty(t, res.Failures)
			}
		})
	}
}

func TestCacheUnavailableDegradesToFetch(t *testing.T) {
	tasks := newFakeTasks()
	keywords := []string{"a", "b"}

	res, err := newTestOrchestrator(brokenStore{}, tasks, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assert.Equal(t, keywords, res.Fetched)
	assert.Empty(t, res.Failures)
	assertPartition(t, keywords, res)
}

func TestTaskFailuresAndRejections(t *testing.T) {
	tasks := newFakeTasks()
	tasks.failTask["broken"] = "40400 not found"
	tasks.reject["bad"] = "invalid keyword"
	keywords := []string{"ok", "broken", "bad"}

	res, err := newTestOrchestrator(cache.NewMemory(), tasks, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assertPartition(t, keywords, res)
	reasons := map[string]string{}
	for _, f := range res.Failures {
		reasons[f.Keyword] = f.Reason
	}
	assert.Equal(t, map[string]string{"broken": ReasonTaskFailed, "bad": ReasonRejected}, reasons)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, TaskCompleted, res.Tasks[0].Status)
}

func TestBatchWithoutPayloadsIsFailed(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		setup    func(f *fakeTasks)
		reason   string
	}{
		{
			name:     "every keyword rejected",
			keywords: []string{"bad", "worse"},
			setup: func(f *fakeTasks) {
				f.reject["bad"] = "invalid keyword"
				f.reject["worse"] = "invalid keyword"
			},
			reason: ReasonRejected,
		},
		{
			name:     "every task failed",
			keywords: []string{"x", "y"},
			setup: func(f *fakeTasks) {
				f.failTask["x"] = "40400 not found"
				f.failTask["y"] = "40400 not found"
			},
			reason: ReasonTaskFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := newFakeTasks()
			tt.setup(tasks)

			res, err := newTestOrchestrator(cache.NewMemory(), tasks, newManualClock()).Run(context.Background(),
				Request{Kind: models.KindSERP, Keywords: tt.keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
			require.NoError(t, err)

			assertPartition(t, tt.keywords, res)
			assert.Empty(t, res.Payloads)
			require.Len(t, res.Failures, len(tt.keywords))
			for _, f := range res.Failures {
				assert.Equal(t, tt.reason, f.Reason)
			}
			require.Len(t, res.Tasks, 1)
			assert.Equal(t, TaskFailed, res.Tasks[0].Status)
		})
	}
}

func TestBatchesAreChunked(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			tasks := newFakeTasks()
			opts := DefaultOptions()
			opts.Clock = newManualClock()
			opts.SERPBatchSize = 2
			opts.Concurrency = concurrency
			o := New(cache.NewMemory(), tasks, nil, opts)

			keywords := []string{"a", "b", "c", "d", "e"}
			res, err := o.Run(context.Background(), Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
			require.NoError(t, err)

			assert.Equal(t, 3, tasks.submits)
			for _, batch := range tasks.submitted {
				assert.LessOrEqual(t, len(batch), 2)
			}
			assert.Len(t, res.Tasks, 3)
			assert.Equal(t, keywords, res.Fetched)
			assertPartition(t, keywords, res)
		})
	}
}

func TestInputIsNormalizedAndDeduped(t *testing.T) {
	tasks := newFakeTasks()
	res, err := newTestOrchestrator(cache.NewMemory(), tasks, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindSERP, Keywords: []string{"Boots", " boots", "SHOES "}, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	require.Len(t, tasks.submitted, 1)
	assert.Equal(t, []string{"boots", "shoes"}, tasks.submitted[0])
	assert.Len(t, res.Payloads, 2)
}

func TestCancellationBetweenPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := cache.NewMemory()
	tasks := newFakeTasks()
	tasks.readyAfter["slow"] = -1
	tasks.onPoll = cancel
	keywords := []string{"fast", "slow"}

	res, err := newTestOrchestrator(store, tasks, newManualClock()).Run(ctx,
		Request{Kind: models.KindSERP, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assertPartition(t, keywords, res)
	assert.Contains(t, res.Payloads, "fast")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ReasonCancelled, res.Failures[0].Reason)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, tasks.pollCalls)
}

func TestVolumeSingleTaskForAllKeywords(t *testing.T) {
	store := cache.NewMemory()
	tasks := newFakeTasks()
	keywords := []string{"a", "bb", "ccc"}

	res, err := newTestOrchestrator(store, tasks, newManualClock()).Run(context.Background(),
		Request{Kind: models.KindVolume, Keywords: keywords, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	assert.Equal(t, 1, tasks.submits)
	assert.Equal(t, 1, tasks.pollCalls)
	assertPartition(t, keywords, res)
	assert.Len(t, cachedKeys(t, store, "volume|"), 3)
}

func TestInvalidRequest(t *testing.T) {
	o := newTestOrchestrator(cache.NewMemory(), newFakeTasks(), newManualClock())

	_, err := o.Run(context.Background(), Request{Kind: "pagerank", Keywords: []string{"a"}, Context: testContext})
	assert.Error(t, err)

	_, err = o.Run(context.Background(), Request{Kind: models.KindSERP, Keywords: []string{"a"}})
	assert.Error(t, err)

	noLive := New(cache.NewMemory(), newFakeTasks(), nil, Options{Clock: newManualClock()})
	_, err = noLive.Run(context.Background(), Request{Kind: models.KindDifficulty, Keywords: []string{"a"}, Context: testContext})
	assert.Error(t, err)
}

func TestProgressEvents(t *testing.T) {
	store := cache.NewMemory()
	key := models.NewCacheKey(models.KindSERP, "cached", testContext).String()
	require.NoError(t, store.Put(context.Background(), models.CacheEntry{Key: key, Payload: []byte(`[]`), FetchedAt: epoch}))

	var tracker Tracker
	var events []Event
	progress := func(e Event) {
		events = append(events, e)
		tracker.Observe(e)
	}

	_, err := newTestOrchestrator(store, newFakeTasks(), newManualClock()).Run(context.Background(), Request{
		Kind: models.KindSERP, Keywords: []string{"cached", "new"}, Context: testContext,
		Policy: Policy{Mode: UseForever}, Progress: progress,
	})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, PhaseCache, events[0].Phase)
	assert.Equal(t, 1, events[0].Done)

	last, ok := tracker.Last()
	require.True(t, ok)
	assert.Equal(t, PhaseDone, last.Phase)
	assert.Equal(t, 2, last.Done)
	assert.Equal(t, 2, last.Total)
}

func TestMetricsCounters(t *testing.T) {
	collector := metrics.NewCollector()
	opts := DefaultOptions()
	opts.Clock = newManualClock()
	opts.Metrics = collector

	tasks := newFakeTasks()
	tasks.failTask["x"] = "gone"
	o := New(cache.NewMemory(), tasks, nil, opts)

	_, err := o.Run(context.Background(), Request{Kind: models.KindSERP, Keywords: []string{"a", "x"}, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)

	snap := collector.Snapshot()
	assert.Equal(t, int64(2), snap.Counters[metrics.CounterCacheMiss])
	assert.Equal(t, int64(1), snap.Counters[metrics.CounterKeywordFetch])
	assert.Equal(t, int64(1), snap.Counters[metrics.CounterKeywordFailed])
}

func TestResultSetsAndMetricsPipelines(t *testing.T) {
	store := cache.NewMemory()
	live := &fakeLive{}
	opts := DefaultOptions()
	opts.Clock = newManualClock()
	o := New(store, newFakeTasks(), live, opts)
	ctx := context.Background()

	sets, failures, err := o.ResultSets(ctx, []string{"a b", "c"}, testContext, Policy{Mode: UseForever}, nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, models.ResultSet{"https://a-b.example/", "https://shared.example/"}, sets["a b"])

	m, failures, err := o.Metrics(ctx, []string{"abc", "unknown"}, testContext, Policy{Mode: UseForever},
		[]models.DataKind{models.KindVolume, models.KindDifficulty, models.KindIntent}, nil)
	require.NoError(t, err)
	assert.Empty(t, failures)

	abc := m["abc"]
	require.NotNil(t, abc.SearchVolume)
	assert.Equal(t, int64(300), *abc.SearchVolume)
	require.NotNil(t, abc.Difficulty)
	assert.Equal(t, 3, *abc.Difficulty)
	require.NotNil(t, abc.Intent)
	assert.Equal(t, "informational", *abc.Intent)

	unknown := m["unknown"]
	assert.Nil(t, unknown.Difficulty)
	assert.NotNil(t, unknown.SearchVolume)
	assert.Equal(t, 2, live.calls)

	// Second pass is served entirely from cache.
	_, _, err = o.Metrics(ctx, []string{"abc", "unknown"}, testContext, Policy{Mode: UseForever},
		[]models.DataKind{models.KindDifficulty, models.KindIntent}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, live.calls)

	_, _, err = o.Metrics(ctx, []string{"abc"}, testContext, Policy{Mode: UseForever}, []models.DataKind{models.KindSERP}, nil)
	assert.Error(t, err)
}

func TestLiveFailureIsRecorded(t *testing.T) {
	live := &fakeLive{err: &remote.PermanentError{Op: "live", Err: errors.New("payment required")}}
	opts := DefaultOptions()
	opts.Clock = newManualClock()
	o := New(cache.NewMemory(), newFakeTasks(), live, opts)

	res, err := o.Run(context.Background(), Request{Kind: models.KindDifficulty, Keywords: []string{"a"}, Context: testContext, Policy: Policy{Mode: UseForever}})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ReasonSubmitFailed, res.Failures[0].Reason)
	assert.Equal(t, 1, live.calls)
}

func TestDecodeFailureSurfacesAsFailure(t *testing.T) {
	store := cache.NewMemory()
	key := models.NewCacheKey(models.KindSERP, "a", testContext).String()
	require.NoError(t, store.Put(context.Background(), models.CacheEntry{Key: key, Payload: json.RawMessage(`{"not":"a list"}`), FetchedAt: epoch}))

	o := newTestOrchestrator(store, newFakeTasks(), newManualClock())
	sets, failures, err := o.ResultSets(context.Background(), []string{"a"}, testContext, Policy{Mode: UseForever}, nil)
	require.NoError(t, err)
	assert.Empty(t, sets)
	require.Len(t, failures, 1)
	assert.Equal(t, "a", failures[0].Keyword)
}
