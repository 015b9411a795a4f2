// Package errs holds the error types shared across the ingestion pipeline
// and the chat layer. Callers branch on them with errors.As; user-facing
// surfaces render only the one-line reason string.
package errs

import "fmt"

// ConfigurationError reports a missing required credential or setting. It is
// fatal and never triggers a fallback.
type ConfigurationError struct {
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Name)
}

// FetchError reports that one retrieval strategy failed. Recoverable: the
// caller moves on to the next strategy.
type FetchError struct {
	Strategy string
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch via %s failed: %s: %v", e.Strategy, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch via %s failed: %s", e.Strategy, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AggregateFetchError reports that every strategy in a chain was exhausted.
// Last carries the final underlying failure.
type AggregateFetchError struct {
	Attempts int
	Last     error
}

func (e *AggregateFetchError) Error() string {
	return fmt.Sprintf("all %d fetch strategies failed, last error: %v", e.Attempts, e.Last)
}

func (e *AggregateFetchError) Unwrap() error { return e.Last }

// ExtractionError reports that a decoder or model produced no usable text.
// Fatal to the current ingestion attempt; the session stays retryable.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s extraction failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s extraction produced no usable text", e.Stage)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError reports malformed or unsupported input, rejected before
// any I/O is attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ResponseError reports a failed model call for a single chat turn. The chat
// layer recovers locally with a canned reply and keeps the error around for
// diagnostics.
type ResponseError struct {
	Err error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("response generation failed: %v", e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }
