package fetch

import (
	"sync"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// Phase names the stage a progress event belongs to.
type Phase string

const (
	PhaseCache  Phase = "cache"
	PhaseSubmit Phase = "submit"
	PhasePoll   Phase = "poll"
	PhaseDone   Phase = "done"
)

// Event reports progress. Done counts keywords resolved so far, whether from
// cache, fetched, or failed.
type Event struct {
	Kind    models.DataKind
	Phase   Phase
	Done    int
	Total   int
	Message string
}

// ProgressFunc receives events. It may be called from several goroutines.
type ProgressFunc func(Event)

// Tracker keeps the latest event for pollers such as a progress view.
type Tracker struct {
	mu   sync.RWMutex
	last Event
	seen bool
}

// Observe implements ProgressFunc.
func (t *Tracker) Observe(e Event) {
	t.mu.Lock()
	t.last = e
	t.seen = true
	t.mu.Unlock()
}

// Last returns the most recent event and whether any was seen.
func (t *Tracker) Last() (Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.seen
}

// counter tracks resolved keywords across concurrent batches.
type counter struct {
	mu       sync.Mutex
	done     int
	total    int
	kind     models.DataKind
	progress ProgressFunc
}

func (c *counter) add(n int, phase Phase, msg string) {
	if c.progress == nil {
		return
	}
	c.mu.Lock()
	c.done += n
	e := Event{Kind: c.kind, Phase: phase, Done: c.done, Total: c.total, Message: msg}
	c.mu.Unlock()
	c.progress(e)
}
