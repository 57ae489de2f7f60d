// Package errs defines the switchboard error taxonomy: every expected
// failure across the policy pipeline, idempotency guard, session manager,
// and channel adapters surfaces as an *Error carrying a stable Code.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies a failure the way callers need to react to it: whether
// to retry, surface to the platform, or treat as a programmer bug.
type Code string

const (
	RateLimited            Code = "rate_limited"
	NotFound               Code = "not_found"
	PermissionDenied       Code = "permission_denied"
	InvalidRequest         Code = "invalid_request"
	MessageTooLong         Code = "message_too_long"
	FileTooLarge           Code = "file_too_large"
	NetworkError           Code = "network_error"
	Timeout                Code = "timeout"
	ServerError            Code = "server_error"
	CircuitOpen            Code = "circuit_open"
	SessionNotFound        Code = "session_not_found"
	AlreadyProcessing      Code = "already_processing"
	Cancelled              Code = "cancelled"
	Unsupported            Code = "unsupported"
	ToolRoundLimitExceeded Code = "tool_round_limit_exceeded"
	Unknown                Code = "unknown"
)

// defaultRetryable is consulted when a caller supplies no explicit
// retryable classifier, matching each code's typical recoverability.
var defaultRetryable = map[Code]bool{
	RateLimited:            true,
	NotFound:               false,
	PermissionDenied:       false,
	InvalidRequest:         false,
	MessageTooLong:         false,
	FileTooLarge:           false,
	NetworkError:           true,
	Timeout:                true,
	ServerError:            true,
	CircuitOpen:            false,
	SessionNotFound:        false,
	AlreadyProcessing:      false,
	Cancelled:              false,
	Unsupported:            false,
	ToolRoundLimitExceeded: false,
	Unknown:                false,
}

// Error is the tagged failure value every expected-error path returns.
// Programmer errors and truly unexpected faults still use panic/plain
// errors; Error is reserved for conditions the caller is meant to branch on.
type Error struct {
	Code         Code
	Message      string
	Retryable    bool
	RetryAfter   time.Duration
	PlatformData map[string]any
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error, defaulting Retryable from the code's taxonomy entry.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: defaultRetryable[code]}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error around a lower-level cause.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithRetryAfter attaches a retry-after hint (used by rate_limited errors).
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// CodeOf extracts the Code from err, returning Unknown if err is not (or
// does not wrap) an *Error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Unknown
}

// IsRetryable reports whether err is an *Error marked Retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
