package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across svdflow.
type ErrorCode string

// Request and transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrPayloadTooLarge    ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Async inference error codes
const (
	ErrSubmissionFailed ErrorCode = "SUBMISSION_FAILED"
	ErrNotReady         ErrorCode = "NOT_READY"
	ErrReadFailed       ErrorCode = "READ_FAILED"
	ErrDecodeFailed     ErrorCode = "DECODE_FAILED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrInferenceFailed  ErrorCode = "INFERENCE_FAILED"
	ErrAssemblyFailed   ErrorCode = "ASSEMBLY_FAILED"
	ErrInvalidState     ErrorCode = "INVALID_TRANSITION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so sentinel errors work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Cause == nil
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Sentinel returns a bare error carrying only a code. errors.Is(err, Sentinel(code))
// reports whether err (or anything it wraps) is a *Error with that code.
func Sentinel(code ErrorCode) *Error {
	return &Error{Code: code}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError returns the first *Error in err's chain, or wraps err as an internal error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrInternalError, "internal error").WithCause(err)
}
