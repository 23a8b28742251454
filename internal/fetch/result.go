package fetch

import (
	"encoding/json"
	"errors"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// Failure reasons.
const (
	ReasonTimedOut     = "timed-out"
	ReasonCancelled    = "cancelled"
	ReasonSubmitFailed = "submit-failed"
	ReasonRejected     = "rejected"
	ReasonTaskFailed   = "task-failed"
	ReasonMissing      = "missing-from-result"
)

var (
	ErrTimedOut  = errors.New("timed out waiting for remote task")
	ErrCancelled = errors.New("fetch cancelled")
)

// Failure records why a keyword has no payload.
type Failure struct {
	Keyword string          `json:"keyword" yaml:"keyword"`
	Kind    models.DataKind `json:"kind" yaml:"kind"`
	Reason  string          `json:"reason" yaml:"reason"`
	Detail  string          `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Result is the outcome of one Run. Every input keyword appears in exactly
// one of Payloads or Failures.
type Result struct {
	Kind      models.DataKind
	Payloads  map[string]json.RawMessage
	FromCache []string
	Fetched   []string
	Failures  []Failure
	Tasks     []TaskSummary
}

// TaskSummary describes how a BulkTask ended.
type TaskSummary struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Keywords int        `json:"keywords"`
	Status   TaskStatus `json:"status"`
}

func newResult(kind models.DataKind) *Result {
	return &Result{
		Kind:     kind,
		Payloads: make(map[string]json.RawMessage),
	}
}

// FailedKeywords returns the keywords that have no payload.
func (r *Result) FailedKeywords() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Keyword
	}
	return out
}

// batchOutcome is what a single BulkTask contributes to a Result.
type batchOutcome struct {
	payloads map[string]json.RawMessage
	failures []Failure
	summary  TaskSummary
}

func (b *batchOutcome) fail(kind models.DataKind, keywords []string, reason, detail string) {
	for _, kw := range keywords {
		b.failures = append(b.failures, Failure{Keyword: kw, Kind: kind, Reason: reason, Detail: detail})
	}
}
