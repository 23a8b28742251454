package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/cluster"
	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/remote"
)

func rs(prefix string, from, to int) models.ResultSet {
	var out models.ResultSet
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("https://%s%d.example/", prefix, i))
	}
	return out
}

var (
	testSets = map[string]models.ResultSet{
		"running shoes":      rs("u", 1, 10),
		"best running shoes": append(rs("u", 1, 9), "https://other.example/"),
		"trail":              rs("t", 1, 10),
	}
	testVolumes = map[string]int64{
		"running shoes":      1000,
		"best running shoes": 5000,
		"trail":              200,
	}
	testDifficulty = map[string]int{
		"running shoes":      55,
		"best running shoes": 40,
		"trail":              12,
	}
)

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func (instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// fakeRemote resolves every task on the first poll and answers live lookups.
type fakeRemote struct {
	mu     sync.Mutex
	calls  int
	failed map[string]bool
	vol    map[string][]string

	sets       map[string]models.ResultSet
	volumes    map[string]int64
	difficulty map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		failed:     map[string]bool{},
		vol:        map[string][]string{},
		sets:       testSets,
		volumes:    testVolumes,
		difficulty: testDifficulty,
	}
}

func (f *fakeRemote) Submit(_ context.Context, kind models.DataKind, keywords []string, _ models.SearchContext) (*remote.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	sub := &remote.Submission{TaskIDs: map[string]string{}, Rejected: map[string]string{}}
	for _, kw := range keywords {
		if kind == models.KindVolume {
			id := fmt.Sprintf("vol-%d", f.calls)
			f.vol[id] = keywords
			sub.TaskIDs[kw] = id
			continue
		}
		sub.TaskIDs[kw] = "serp-" + kw
	}
	return sub, nil
}

func (f *fakeRemote) Poll(_ context.Context, kind models.DataKind, taskIDs []string) (map[string]remote.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	out := map[string]remote.TaskResult{}
	for _, id := range taskIDs {
		payloads := map[string]json.RawMessage{}
		if kind == models.KindVolume {
			for _, kw := range f.vol[id] {
				data, _ := json.Marshal(models.Metrics{SearchVolume: models.Int64(f.volumes[kw])})
				payloads[kw] = data
			}
			out[id] = remote.TaskResult{State: remote.TaskReady, Payloads: payloads}
			continue
		}
		kw := strings.TrimPrefix(id, "serp-")
		if f.failed[kw] {
			out[id] = remote.TaskResult{State: remote.TaskFailed, Reason: "no results"}
			continue
		}
		data, _ := json.Marshal(f.sets[kw])
		payloads[kw] = data
		out[id] = remote.TaskResult{State: remote.TaskReady, Payloads: payloads}
	}
	return out, nil
}

func (f *fakeRemote) FetchLive(_ context.Context, kind models.DataKind, keywords []string, _ models.SearchContext) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	out := map[string]json.RawMessage{}
	for _, kw := range keywords {
		var m models.Metrics
		switch kind {
		case models.KindDifficulty:
			d, ok := f.difficulty[kw]
			if !ok {
				continue
			}
			m.Difficulty = models.Int(d)
		case models.KindIntent:
			m.Intent = models.String("commercial")
		}
		data, _ := json.Marshal(m)
		out[kw] = data
	}
	return out, nil
}

func (f *fakeRemote) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPipeline(store cache.Store, tasks fetch.TaskClient) *Pipeline {
	var fetcher *fetch.Orchestrator
	if tasks != nil {
		opts := fetch.DefaultOptions()
		opts.Clock = instantClock{}
		live, _ := tasks.(fetch.LiveClient)
		fetcher = fetch.New(store, tasks, live, opts)
	}
	return NewPipeline(fetcher, store, nil, nil)
}

func clusterKeywords(out *cluster.Output) [][]string {
	var got [][]string
	for i := range out.Clusters {
		got = append(got, out.Clusters[i].Keywords())
	}
	return got
}

func putCached(t *testing.T, store cache.Store, kind models.DataKind, kw string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), models.CacheEntry{
		Key:       models.NewCacheKey(kind, kw, models.DefaultSearchContext()).String(),
		Payload:   data,
		FetchedAt: time.Now(),
	}))
}

func TestPipelineRun(t *testing.T) {
	store := cache.NewMemory()
	p := newTestPipeline(store, newFakeRemote())

	report, err := p.Run(context.Background(), []string{"Running Shoes", "trail", "best running shoes"}, DefaultPipelineOptions(), nil)
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	assert.Equal(t, [][]string{{"best running shoes", "running shoes"}, {"trail"}}, clusterKeywords(report.Clusters))
	assert.Equal(t, int64(5000), *report.Metrics["best running shoes"].SearchVolume)
	assert.Equal(t, 40, *report.Metrics["best running shoes"].Difficulty)
	assert.Equal(t, "commercial", *report.Metrics["trail"].Intent)
	// serp, volume, difficulty and intent for each keyword.
	assert.Equal(t, 12, store.Len())

	sum := report.Clusters.Clusters[0].Summary
	assert.Equal(t, int64(6000), sum.TotalVolume)
	require.NotNil(t, sum.AverageDifficulty)
	assert.InDelta(t, 47.5, *sum.AverageDifficulty, 1e-9)
	assert.Equal(t, "commercial", sum.PrimaryIntent)
}

func TestPipelineRunBreaksVolumeTiesByDifficulty(t *testing.T) {
	tasks := newFakeRemote()
	tasks.sets = map[string]models.ResultSet{
		"alpha": rs("u", 1, 10),
		"beta":  rs("u", 1, 10),
	}
	tasks.volumes = map[string]int64{"alpha": 500, "beta": 500}
	tasks.difficulty = map[string]int{"alpha": 60, "beta": 10}
	p := newTestPipeline(cache.NewMemory(), tasks)

	report, err := p.Run(context.Background(), []string{"alpha", "beta"}, DefaultPipelineOptions(), nil)
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	require.Len(t, report.Clusters.Clusters, 1)
	assert.Equal(t, "beta", report.Clusters.Clusters[0].Primary)
	assert.Equal(t, []string{"beta", "alpha"}, report.Clusters.Clusters[0].Keywords())
}

func TestPipelineRunReportsFailures(t *testing.T) {
	tasks := newFakeRemote()
	tasks.failed["trail"] = true
	p := newTestPipeline(cache.NewMemory(), tasks)

	opts := DefaultPipelineOptions()
	opts.SkipMetrics = true
	report, err := p.Run(context.Background(), []string{"running shoes", "trail", "best running shoes"}, opts, nil)
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "trail", report.Failures[0].Keyword)
	assert.Equal(t, fetch.ReasonTaskFailed, report.Failures[0].Reason)
	assert.Nil(t, report.Metrics)

	// Input order picks the primary without metrics.
	assert.Equal(t, [][]string{{"running shoes", "best running shoes"}, {"trail"}}, clusterKeywords(report.Clusters))
	assert.True(t, report.Clusters.Clusters[1].NoResults)
}

func TestPipelineRunValidatesBeforeFetching(t *testing.T) {
	tasks := newFakeRemote()
	p := newTestPipeline(cache.NewMemory(), tasks)

	opts := DefaultPipelineOptions()
	opts.Cluster.MinIntersections = 50
	_, err := p.Run(context.Background(), []string{"trail"}, opts, nil)
	assert.ErrorIs(t, err, cluster.ErrInvalidConfig)

	_, err = p.Run(context.Background(), []string{" ", ""}, DefaultPipelineOptions(), nil)
	assert.ErrorIs(t, err, ErrNoKeywords)

	opts = DefaultPipelineOptions()
	opts.MetricsKinds = []models.DataKind{models.KindSERP}
	_, err = p.Run(context.Background(), []string{"trail"}, opts, nil)
	assert.Error(t, err)

	assert.Zero(t, tasks.remoteCalls())
}

func TestClusterCached(t *testing.T) {
	store := cache.NewMemory()
	putCached(t, store, models.KindSERP, "running shoes", testSets["running shoes"])
	putCached(t, store, models.KindSERP, "best running shoes", testSets["best running shoes"])
	putCached(t, store, models.KindVolume, "best running shoes", models.Metrics{SearchVolume: models.Int64(5000)})
	putCached(t, store, models.KindVolume, "running shoes", models.Metrics{SearchVolume: models.Int64(10)})

	p := newTestPipeline(store, nil)
	assert.False(t, p.CanFetch())

	report, err := p.ClusterCached(context.Background(), []string{"running shoes", "trail", "best running shoes"}, DefaultPipelineOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"trail"}, report.Missing)
	assert.Equal(t, [][]string{{"best running shoes", "running shoes"}}, clusterKeywords(report.Clusters))

	_, err = p.Run(context.Background(), []string{"trail"}, DefaultPipelineOptions(), nil)
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestClusterCachedNothingFound(t *testing.T) {
	p := newTestPipeline(cache.NewMemory(), nil)

	report, err := p.ClusterCached(context.Background(), []string{"a", "b"}, DefaultPipelineOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Missing)
	assert.Empty(t, report.Clusters.Clusters)
}

func TestClusterCachedRespectsFreshness(t *testing.T) {
	store := cache.NewMemory()
	require.NoError(t, store.Put(context.Background(), models.CacheEntry{
		Key:       models.NewCacheKey(models.KindSERP, "old", models.DefaultSearchContext()).String(),
		Payload:   []byte(`["https://a.example/"]`),
		FetchedAt: time.Now().Add(-90 * 24 * time.Hour),
	}))
	p := newTestPipeline(store, nil)

	opts := DefaultPipelineOptions()
	opts.Policy = fetch.FreshWithinDays(30)
	report, err := p.ClusterCached(context.Background(), []string{"old"}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, report.Missing)

	opts.Policy = fetch.Policy{Mode: fetch.AlwaysFetch}
	report, err = p.ClusterCached(context.Background(), []string{"old"}, opts)
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
}

func TestRunManager(t *testing.T) {
	collector := metrics.NewCollector()
	m := NewRunManager(newTestPipeline(cache.NewMemory(), newFakeRemote()), collector)
	defer m.Close()

	run, err := m.Start([]string{"running shoes", "best running shoes", "trail"}, DefaultPipelineOptions())
	require.NoError(t, err)
	assert.Len(t, run.ID, 8)

	m.Wait()

	got, err := m.Get(run.ID)
	require.NoError(t, err)
	snap := got.Snapshot()
	assert.Equal(t, RunStatusCompleted, snap.Status)
	assert.True(t, snap.Done())
	require.NotNil(t, snap.Report)
	require.NotNil(t, snap.CompletedAt)
	assert.Equal(t, 2, snap.Report.Clusters.Stats.Clusters)
	assert.Equal(t, fetch.PhaseDone, snap.Phase)
	assert.Equal(t, snap.Total, snap.Progress)

	assert.Equal(t, int64(1), collector.Snapshot().Counters[metrics.CounterRunStarted])
	assert.Len(t, m.List(), 1)
}

func TestRunManagerErrors(t *testing.T) {
	m := NewRunManager(newTestPipeline(cache.NewMemory(), newFakeRemote()), nil)
	defer m.Close()

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = m.Start(nil, DefaultPipelineOptions())
	assert.ErrorIs(t, err, ErrNoKeywords)

	opts := DefaultPipelineOptions()
	opts.Cluster.Algorithm = "nope"
	_, err = m.Start([]string{"a"}, opts)
	assert.ErrorIs(t, err, cluster.ErrInvalidConfig)
	assert.Empty(t, m.List())

	cacheOnly := NewRunManager(newTestPipeline(cache.NewMemory(), nil), nil)
	defer cacheOnly.Close()
	_, err = cacheOnly.Start([]string{"a"}, DefaultPipelineOptions())
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestRunManagerListOrder(t *testing.T) {
	m := NewRunManager(newTestPipeline(cache.NewMemory(), newFakeRemote()), nil)
	defer m.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.runs["old"] = &Run{ID: "old", StartedAt: base}
	m.runs["new"] = &Run{ID: "new", StartedAt: base.Add(time.Hour)}

	runs := m.List()
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestRunFailureIsRecorded(t *testing.T) {
	m := NewRunManager(newTestPipeline(cache.NewMemory(), newFakeRemote()), nil)
	defer m.Close()

	run := &Run{ID: "r1", Status: RunStatusRunning}
	m.fail(run, fmt.Errorf("boom"))

	snap := run.Snapshot()
	assert.Equal(t, RunStatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)
	assert.True(t, snap.Done())
}
