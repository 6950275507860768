package harvest

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for the harvesting error taxonomy. Callers classify
// with errors.Is; wrapping sites attach the specific cause.
var (
	// ErrTransientNetwork marks connection-reset, DNS, and timeout failures
	// that the transport retries automatically.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrTransientHTTP marks 429/502/503/504 responses, retried with backoff.
	ErrTransientHTTP = errors.New("transient http error")

	// ErrPermanentHTTP marks 4xx (other than 429) and malformed responses,
	// surfaced immediately and never retried.
	ErrPermanentHTTP = errors.New("permanent http error")

	// ErrAuthFailed marks credential-resolution or token-exchange failure.
	// Never downgraded to an unauthenticated request.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrCircuitOpen marks a fast-fail rejection by an open circuit breaker,
	// distinguishable from an actual operation failure.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// SourceError wraps a whole-source failure with enough context for the
// orchestrator to report which source broke without unpacking the cause.
type SourceError struct {
	SourceID string
	URL      string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s (%s): %v", e.SourceID, e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError builds a SourceError for the given source configuration.
func NewSourceError(source SourceConfig, err error) *SourceError {
	return &SourceError{SourceID: source.ID, URL: source.URL, Err: err}
}
