package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
var (
	// ErrTransactionConflict indicates concurrent writers touched the same record.
	// The cache is last-writer-wins, so callers may retry the write.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrSchema indicates the cache table does not match the expected schema.
	ErrSchema = errors.New("schema mismatch")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the matching
// sentinel when the message is recognized.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
		if strings.Contains(msg, "Found") && strings.Contains(msg, "expected") {
			return fmt.Errorf("%w: %s", ErrSchema, msg)
		}
	}

	return err
}
