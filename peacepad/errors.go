package peacepad

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	// Server-side errors (from the call-record API)
	ErrorUnknown ErrorCode = iota
	ErrorUnauthorized
	ErrorCallNotFound
	ErrorCallAlreadyResolved
	ErrorInternalServer

	// Client-side errors
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorInvalidConfig
	ErrorNotConnected
	ErrorQueued
	ErrorSerialization
	ErrorReasonRequired
	ErrorDecisionPending
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorCallNotFound:
		return "call_not_found"
	case ErrorCallAlreadyResolved:
		return "call_already_resolved"
	case ErrorInternalServer:
		return "internal_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorQueued:
		return "queued"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorReasonRequired:
		return "reason_required"
	case ErrorDecisionPending:
		return "decision_pending"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// Error is a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface for error comparison.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a coded Error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// ErrQueued is returned by Send when the socket is down and the payload
// was appended to the pending queue instead of being transmitted.
var ErrQueued = NewError(ErrorQueued, "not connected, message queued")

// ErrReasonRequired is returned by Decline when no canned reason has been
// chosen yet; no network request is made in that case.
var ErrReasonRequired = NewError(ErrorReasonRequired, "a decline reason must be chosen first")

// ErrDecisionPending is returned when a decision for the same call id is
// already in flight.
var ErrDecisionPending = NewError(ErrorDecisionPending, "a decision for this call is already in flight")

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == ErrorConnection || pe.Code == ErrorDisconnected || pe.Code == ErrorTimeout
}

// IsRetryable reports whether a failed call action may be retried without
// losing the incoming call: the ringing slot is left untouched on these.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case ErrorConnection, ErrorTimeout, ErrorInternalServer, ErrorReasonRequired:
		return true
	default:
		return false
	}
}
