package domain

import "errors"

// Common domain errors
var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrServiceInvalid      = errors.New("invalid service record")
	ErrUnsafeTarget        = errors.New("target blocked by SSRF policy")
	ErrUpstreamUnreachable = errors.New("upstream service unreachable")
	ErrSealIncomplete      = errors.New("incomplete openseal metadata")
	ErrConfigInvalid       = errors.New("invalid configuration")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the admin API.
// It intentionally avoids exposing sensitive details while providing a stable machine-readable code.
// TraceID should carry the current OpenTelemetry trace identifier when available to aid diagnostics.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., UNSAFE_TARGET, BAD_GATEWAY)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
