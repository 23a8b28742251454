package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidBatchSize is returned before any I/O when a batch exceeds the endpoint limit.
var ErrInvalidBatchSize = errors.New("invalid batch size")

// TransientError is a failure worth retrying: network trouble, rate limits, server errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that will not succeed on retry: bad credentials,
// malformed requests, exhausted balance.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("%s: permanent: %v", e.Op, e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// APIError carries a non-success status from the response envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// API status codes with special meaning.
const (
	statusOK          = 20000
	statusTaskCreated = 20100
	statusTaskHanded  = 40601
	statusTaskInQueue = 40602
	statusRateLimited = 40202
)

func isPendingStatus(code int) bool {
	return code == statusTaskHanded || code == statusTaskInQueue
}

func isSuccessStatus(code int) bool {
	return code == statusOK || code == statusTaskCreated
}

// classifyHTTP maps an HTTP status to an error class.
func classifyHTTP(op string, status int, body string) error {
	err := fmt.Errorf("http %d: %s", status, truncate(body, 200))
	if status == http.StatusTooManyRequests || status >= 500 {
		return &TransientError{Op: op, Err: err}
	}
	return &PermanentError{Op: op, Err: err}
}

// classifyAPI maps an envelope status code to an error class.
func classifyAPI(op string, code int, msg string) error {
	err := &APIError{StatusCode: code, Message: msg}
	if code == statusRateLimited || code >= 50000 {
		return &TransientError{Op: op, Err: err}
	}
	return &PermanentError{Op: op, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
