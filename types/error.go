package types

import (
	"errors"
	"fmt"
)

// PipelineErrorCode classifies pipeline failures surfaced to the caller.
// Safety vetoes (filter/sanitizer blocks) are deliberately NOT error codes:
// they are ordinary responses carrying fallback copy, because the end user
// must always receive something coherent.
type PipelineErrorCode string

const (
	// ErrCodeCircuitOpen means the breaker tripped; the upstream call was not
	// attempted.
	ErrCodeCircuitOpen PipelineErrorCode = "CIRCUIT_OPEN"
	// ErrCodeUpstreamNonRetryable covers auth, bad-request, forbidden and
	// rate-limit/quota failures, surfaced immediately without retry.
	ErrCodeUpstreamNonRetryable PipelineErrorCode = "UPSTREAM_NON_RETRYABLE"
	// ErrCodeUpstreamTransient covers network and 5xx-class failures that
	// exhausted their retries.
	ErrCodeUpstreamTransient PipelineErrorCode = "UPSTREAM_TRANSIENT"
	// ErrCodeInvalidUpstreamResponse means the completion had a malformed
	// shape (empty choices, missing message content). Never retried.
	ErrCodeInvalidUpstreamResponse PipelineErrorCode = "INVALID_UPSTREAM_RESPONSE"
	// ErrCodeEstimationDegraded means token/complexity heuristics ran on
	// empty or pathological input. Logged with defaults applied, never fatal;
	// the code exists for callers that record degradation.
	ErrCodeEstimationDegraded PipelineErrorCode = "ESTIMATION_DEGRADED"
)

// PipelineError is the typed error returned by the orchestrator for genuine
// connectivity/contract failures with the provider.
type PipelineError struct {
	Code    PipelineErrorCode `json:"code"`
	Message string            `json:"message"`
	Err     error             `json:"-"`
}

// NewPipelineError creates a PipelineError wrapping an underlying cause.
func NewPipelineError(code PipelineErrorCode, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error { return e.Err }

// PipelineErrorCodeOf extracts the code from err, or "" if err is not a
// PipelineError.
func PipelineErrorCodeOf(err error) PipelineErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
