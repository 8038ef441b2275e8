package ai

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure modes that end a generation.
// These can be checked with errors.Is().
var (
	// ErrTransport indicates the request could not be built or sent, the
	// endpoint answered with a non-success status, or the stream broke.
	ErrTransport = errors.New("ai: transport failure")

	// ErrStallTimeout indicates the upstream kept sending keep-alives but no
	// content arrived before the watchdog fired.
	ErrStallTimeout = errors.New("ai: no content received before stall timeout")

	// ErrInvalidRequest indicates the request is missing a required field.
	ErrInvalidRequest = errors.New("ai: invalid request")
)

// TransportError describes a fatal request or stream failure. It is never
// retried.
type TransportError struct {
	Op         string // "encode", "request", "status" or "read"
	StatusCode int    // HTTP status, when Op is "status"
	Body       string // Truncated response body, when Op is "status"
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation endpoint error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("generation %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// StallTimeoutError is returned when the watchdog cancels an attempt.
type StallTimeoutError struct {
	Attempt    int
	Window     time.Duration
	KeepAlives int
	Since      time.Time // when the watchdog was armed
}

func (e *StallTimeoutError) Error() string {
	return fmt.Sprintf("API request timed out: no content after %s (%d keep-alives, attempt %d), please retry later",
		e.Window, e.KeepAlives, e.Attempt+1)
}

func (e *StallTimeoutError) Unwrap() error {
	return ErrStallTimeout
}
