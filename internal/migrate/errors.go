package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ErrNoMorePages is returned by the fetcher once the source reported its last page.
var ErrNoMorePages = errors.New("no more pages")

// ErrNotAttempted is the failure reason for records that were fetched but never
// written because the run aborted first.
var ErrNotAttempted = errors.New("not attempted: run aborted")

// TransientError marks a failure that is worth retrying: network hiccups,
// server errors, and explicit rate-limit responses.
type TransientError struct {
	Op         string
	StatusCode int
	// RetryAfter is the server-requested delay, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalFetchError aborts the run. It covers authentication and schema
// failures on the source as well as exhausted transient retries.
type FatalFetchError struct {
	Op  string
	Err error
}

func (e *FatalFetchError) Error() string {
	return fmt.Sprintf("fatal fetch error: %s: %v", e.Op, e.Err)
}

func (e *FatalFetchError) Unwrap() error { return e.Err }

// ValidationError is a destination rejection of the payload itself.
type ValidationError struct {
	Codes   []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Codes) == 0 {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error [%s]: %s", strings.Join(e.Codes, ","), e.Message)
}

// TransformError reports a source record that cannot be shaped into a payload.
type TransformError struct {
	ID     string
	Reason string
	Err    error
}

func (e *TransformError) Error() string {
	msg := "transform record"
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Adapters wrap client-side timeouts, which also match DeadlineExceeded.
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// RetryAfter extracts a server-requested delay from err.
func RetryAfter(err error) time.Duration {
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.RetryAfter
	}
	return 0
}
