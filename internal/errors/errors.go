package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Startup errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeInvalidSecret ErrorCode = "INVALID_SECRET_KEY"

	// Routing errors
	ErrCodeNoBackends      ErrorCode = "NO_BACKENDS_AVAILABLE"
	ErrCodeInvalidStrategy ErrorCode = "INVALID_STRATEGY"
	ErrCodeBackendUnknown  ErrorCode = "BACKEND_UNKNOWN"

	// Request processing errors
	ErrCodeClientBlocked ErrorCode = "CLIENT_BLOCKED"
	ErrCodeBurstExceeded ErrorCode = "BURST_LIMIT_EXCEEDED"
	ErrCodeForwardFailed ErrorCode = "FORWARD_FAILED"

	// Locally recovered errors
	ErrCodeTokenDecode ErrorCode = "AFFINITY_TOKEN_INVALID"
	ErrCodeProbeFailed ErrorCode = "HEALTH_PROBE_FAILED"
)

// ProxyError represents a structured error with component context
type ProxyError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *ProxyError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *ProxyError) Is(target error) bool {
	if t, ok := target.(*ProxyError); ok {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatusCode returns the status class surfaced to the client for
// this error. Blocked clients get 403, an empty available set 503 and a
// forwarding failure 502.
func (e *ProxyError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeClientBlocked:
		return 403
	case ErrCodeBurstExceeded:
		return 429
	case ErrCodeNoBackends:
		return 503
	case ErrCodeForwardFailed:
		return 502
	default:
		return 500
	}
}

// NewError creates a new ProxyError
func NewError(code ErrorCode, component, message string) *ProxyError {
	return &ProxyError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewErrorWithCause creates a new ProxyError with an underlying cause
func NewErrorWithCause(code ErrorCode, component, message string, cause error) *ProxyError {
	return &ProxyError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
