package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/remote"
)

var testContext = models.DefaultSearchContext()

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// manualClock advances instantly on Sleep.
type manualClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newManualClock() *manualClock { return &manualClock{now: epoch} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.mu.Unlock()
	return nil
}

// fakeTasks is a scripted remote task API. SERP tasks are "serp-<keyword>",
// volume tasks "vol-<n>".
type fakeTasks struct {
	mu sync.Mutex

	// readyAfter is the number of polls a keyword stays pending. Negative means never.
	readyAfter map[string]int
	failTask   map[string]string
	reject     map[string]string
	submitErrs []error
	// onPoll runs after every poll call.
	onPoll func()

	submits   int
	pollCalls int
	submitted [][]string
	polled    map[string]int
	volTasks  map[string][]string
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{
		readyAfter: map[string]int{},
		failTask:   map[string]string{},
		reject:     map[string]string{},
		polled:     map[string]int{},
		volTasks:   map[string][]string{},
	}
}

func (f *fakeTasks) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits + f.pollCalls
}

func (f *fakeTasks) Submit(_ context.Context, kind models.DataKind, keywords []string, _ models.SearchContext) (*remote.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submits++
	f.submitted = append(f.submitted, append([]string(nil), keywords...))
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	sub := &remote.Submission{TaskIDs: map[string]string{}, Rejected: map[string]string{}}
	if kind == models.KindVolume {
		id := fmt.Sprintf("vol-%d", f.submits)
		f.volTasks[id] = keywords
		for _, kw := range keywords {
			sub.TaskIDs[kw] = id
		}
		return sub, nil
	}
	for _, kw := range keywords {
		if reason, ok := f.reject[kw]; ok {
			sub.Rejected[kw] = reason
			continue
		}
		sub.TaskIDs[kw] = "serp-" + kw
	}
	return sub, nil
}

func (f *fakeTasks) Poll(_ context.Context, kind models.DataKind, taskIDs []string) (map[string]remote.TaskResult, error) {
	f.mu.Lock()
	f.pollCalls++
	out := make(map[string]remote.TaskResult, len(taskIDs))
	for _, id := range taskIDs {
		f.polled[id]++
		if kind == models.KindVolume {
			payloads := map[string]json.RawMessage{}
			for _, kw := range f.volTasks[id] {
				payloads[kw] = volumePayload(kw)
			}
			out[id] = remote.TaskResult{State: remote.TaskReady, Payloads: payloads}
			continue
		}

		kw := strings.TrimPrefix(id, "serp-")
		if reason, ok := f.failTask[kw]; ok {
			out[id] = remote.TaskResult{State: remote.TaskFailed, Reason: reason}
			continue
		}
		after := f.readyAfter[kw]
		if after < 0 || f.polled[id] <= after {
			out[id] = remote.TaskResult{State: remote.TaskPending}
			continue
		}
		out[id] = remote.TaskResult{
			State:    remote.TaskReady,
			Payloads: map[string]json.RawMessage{kw: serpPayload(kw)},
		}
	}
	onPoll := f.onPoll
	f.mu.Unlock()

	if onPoll != nil {
		onPoll()
	}
	return out, nil
}

type fakeLive struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLive) FetchLive(_ context.Context, kind models.DataKind, keywords []string, _ models.SearchContext) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	out := map[string]json.RawMessage{}
	for _, kw := range keywords {
		if kw == "unknown" {
			continue
		}
		m := models.Metrics{Difficulty: models.Int(len(kw))}
		if kind == models.KindIntent {
			m = models.Metrics{Intent: models.String("informational")}
		}
		data, _ := json.Marshal(m)
		out[kw] = data
	}
	return out, nil
}

func serpPayload(kw string) json.RawMessage {
	data, _ := json.Marshal(models.ResultSet{"https://" + strings.ReplaceAll(kw, " ", "-") + ".example/", "https://shared.example/"})
	return data
}

func volumePayload(kw string) json.RawMessage {
	data, _ := json.Marshal(models.Metrics{SearchVolume: models.Int64(int64(len(kw) * 100)), CPC: models.Float64(1.25)})
	return data
}

// brokenStore fails every operation.
type brokenStore struct{}

var errDiskGone = errors.New("disk gone")

func (brokenStore) Get(context.Context, string) (*models.CacheEntry, error) {
	return nil, fmt.Errorf("%w: %w", cache.ErrUnavailable, errDiskGone)
}

func (brokenStore) Put(context.Context, models.CacheEntry) error {
	return fmt.Errorf("%w: %w", cache.ErrUnavailable, errDiskGone)
}

func (brokenStore) Close() error { return nil }
