package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// AuthorizationError means no visibility context could be established for
// the caller. Rows the caller simply may not see never produce one.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return "authorization: " + e.Reason + ": " + e.Err.Error()
	}
	return "authorization: " + e.Reason
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// ExecutionError is a storage failure during execution. Retryable is a hint
// for the caller; the engine itself never retries.
type ExecutionError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func execError(op string, err error) *ExecutionError {
	return &ExecutionError{Op: op, Retryable: retryable(err), Err: err}
}

// retryable classifies transient storage failures: timeouts, dropped
// connections, serialization conflicts, and resource exhaustion.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn):
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"):
			return true
		case code == "40001", code == "40P01", code == "57014", code == "57P01":
			return true
		}
	}
	return false
}
