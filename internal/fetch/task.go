package fetch

import (
	"fmt"
	"slices"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// TaskStatus is the lifecycle state of a BulkTask.
type TaskStatus string

const (
	TaskSubmitted TaskStatus = "submitted"
	TaskPolling   TaskStatus = "polling"
	TaskCompleted TaskStatus = "completed"
	TaskTimedOut  TaskStatus = "timed-out"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskTimedOut || s == TaskFailed
}

var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskSubmitted: {TaskPolling, TaskCompleted, TaskFailed},
	TaskPolling:   {TaskCompleted, TaskTimedOut, TaskFailed},
}

// BulkTask tracks one submitted batch of keywords until every member resolves
// or the deadline passes. A BulkTask is owned by a single goroutine.
type BulkTask struct {
	ID        string
	Kind      models.DataKind
	Keywords  []string
	TaskIDs   map[string]string
	CreatedAt time.Time
	Deadline  time.Time
	Status    TaskStatus

	// outstanding maps remote task ID to the keywords it still owes.
	outstanding map[string][]string
}

func newBulkTask(id string, kind models.DataKind, keywords []string, now time.Time, timeout time.Duration) *BulkTask {
	return &BulkTask{
		ID:          id,
		Kind:        kind,
		Keywords:    keywords,
		TaskIDs:     make(map[string]string),
		CreatedAt:   now,
		Deadline:    now.Add(timeout),
		Status:      TaskSubmitted,
		outstanding: make(map[string][]string),
	}
}

func (t *BulkTask) transition(to TaskStatus) error {
	if !slices.Contains(allowedTransitions[t.Status], to) {
		return fmt.Errorf("bulk task %s: invalid transition %s -> %s", t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// accept records the task IDs returned by a submission and starts polling.
// The deadline is measured from acceptance. A batch with nothing to poll stays
// submitted until settle decides its outcome.
func (t *BulkTask) accept(taskIDs map[string]string, now time.Time, timeout time.Duration) error {
	for _, kw := range t.Keywords {
		id, ok := taskIDs[kw]
		if !ok {
			continue
		}
		t.TaskIDs[kw] = id
		t.outstanding[id] = append(t.outstanding[id], kw)
	}
	t.CreatedAt = now
	t.Deadline = now.Add(timeout)
	if len(t.outstanding) == 0 {
		return nil
	}
	return t.transition(TaskPolling)
}

// settle moves a batch that is not yet terminal to its final status: failed
// when no keyword produced a payload, completed otherwise.
func (t *BulkTask) settle(fetched, failed int) error {
	if t.Status.Terminal() {
		return nil
	}
	if fetched == 0 && failed > 0 {
		return t.transition(TaskFailed)
	}
	return t.transition(TaskCompleted)
}

// pendingTaskIDs returns outstanding remote task IDs in a stable order.
func (t *BulkTask) pendingTaskIDs() []string {
	ids := make([]string, 0, len(t.outstanding))
	for id := range t.outstanding {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// resolve removes a remote task from polling and returns the keywords it covered.
func (t *BulkTask) resolve(taskID string) []string {
	kws := t.outstanding[taskID]
	delete(t.outstanding, taskID)
	return kws
}

// pendingKeywords returns every keyword still waiting on a task.
func (t *BulkTask) pendingKeywords() []string {
	var out []string
	for _, id := range t.pendingTaskIDs() {
		out = append(out, t.outstanding[id]...)
	}
	return out
}

func (t *BulkTask) done() bool {
	return len(t.outstanding) == 0
}

func (t *BulkTask) expired(now time.Time) bool {
	return !now.Before(t.Deadline)
}
