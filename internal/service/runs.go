package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

var timeNow = time.Now

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus represents the state of a background run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a pipeline run executing in the background.
type Run struct {
	ID          string
	Status      RunStatus
	Keywords    int
	Kind        models.DataKind
	Phase       fetch.Phase
	Progress    int
	Total       int
	Message     string
	Report      *Report
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu sync.RWMutex
}

// RunSnapshot is a point-in-time copy of a Run.
type RunSnapshot struct {
	ID          string          `json:"id" yaml:"id"`
	Status      RunStatus       `json:"status" yaml:"status"`
	Keywords    int             `json:"keywords" yaml:"keywords"`
	Kind        models.DataKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Phase       fetch.Phase     `json:"phase,omitempty" yaml:"phase,omitempty"`
	Progress    int             `json:"progress" yaml:"progress"`
	Total       int             `json:"total" yaml:"total"`
	Message     string          `json:"message,omitempty" yaml:"message,omitempty"`
	Report      *Report         `json:"report,omitempty" yaml:"report,omitempty"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Done reports whether the run reached a terminal status.
func (s RunSnapshot) Done() bool {
	return s.Status == RunStatusCompleted || s.Status == RunStatusFailed
}

// Snapshot returns a thread-safe copy of run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunSnapshot{
		ID:          r.ID,
		Status:      r.Status,
		Keywords:    r.Keywords,
		Kind:        r.Kind,
		Phase:       r.Phase,
		Progress:    r.Progress,
		Total:       r.Total,
		Message:     r.Message,
		Report:      r.Report,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// RunManager tracks background pipeline runs. Runs live in memory only.
type RunManager struct {
	runs     map[string]*Run
	mu       sync.RWMutex
	pipeline *Pipeline
	metrics  *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunManager creates a run manager. collector may be nil.
func NewRunManager(pipeline *Pipeline, collector *metrics.Collector) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		runs:     make(map[string]*Run),
		pipeline: pipeline,
		metrics:  collector,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start validates the request and launches the run in the background.
func (m *RunManager) Start(keywords []string, opts PipelineOptions) (*Run, error) {
	if !m.pipeline.CanFetch() {
		return nil, ErrNoFetcher
	}
	keywords = models.NormalizeKeywords(keywords)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New().String()[:8],
		Status:    RunStatusPending,
		Keywords:  len(keywords),
		Total:     len(keywords),
		StartedAt: timeNow(),
	}

	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()

	m.metrics.Add(metrics.CounterRunStarted, 1)
	slog.Info("run created", "run_id", run.ID, "keywords", len(keywords), "algorithm", opts.Cluster.Algorithm)

	m.wg.Add(1)
	go m.execute(run, keywords, opts)
	return run, nil
}

func (m *RunManager) execute(run *Run, keywords []string, opts PipelineOptions) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("run goroutine panicked", "run_id", run.ID, "panic", r)
			m.fail(run, fmt.Errorf("internal panic: %v", r))
		}
	}()

	m.setRunning(run)
	report, err := m.pipeline.Run(m.ctx, keywords, opts, func(e fetch.Event) {
		m.updateProgress(run, e)
	})
	if err != nil {
		m.fail(run, err)
		return
	}
	m.complete(run, report)
}

// Get retrieves a run by ID.
func (m *RunManager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// List returns all runs, most recent first.
func (m *RunManager) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	slices.SortFunc(runs, func(a, b *Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return runs
}

// Wait blocks until every started run finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// Close cancels in-flight runs and waits for them to finish. Their
// keywords are reported as cancelled and cached partial results are kept.
func (m *RunManager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *RunManager) updateProgress(run *Run, e fetch.Event) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.Kind = e.Kind
	run.Phase = e.Phase
	run.Progress = e.Done
	run.Total = e.Total
	if e.Message != "" {
		run.Message = e.Message
	}
}

func (m *RunManager) setRunning(run *Run) {
	run.mu.Lock()
	run.Status = RunStatusRunning
	run.mu.Unlock()
}

func (m *RunManager) complete(run *Run, report *Report) {
	run.mu.Lock()
	run.Status = RunStatusCompleted
	run.Report = report
	now := timeNow()
	run.CompletedAt = &now
	run.mu.Unlock()

	slog.Info("run completed", "run_id", run.ID, "clusters", report.Clusters.Stats.Clusters, "failures", len(report.Failures))
}

func (m *RunManager) fail(run *Run, err error) {
	run.mu.Lock()
	run.Status = RunStatusFailed
	run.Error = err.Error()
	now := timeNow()
	run.CompletedAt = &now
	run.mu.Unlock()

	slog.Error("run failed", "run_id", run.ID, "error", err)
}
