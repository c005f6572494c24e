package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates malformed input such as a bad command argument.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypePermission indicates the sender may not perform the action.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a stage, plugin, platform or provider was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeProvider indicates an LLM provider call failed.
	ErrorTypeProvider ErrorType = "provider"

	// ErrorTypePlatform indicates a platform adapter failed to deliver.
	ErrorTypePlatform ErrorType = "platform"

	// ErrorTypeInternal indicates an unexpected failure.
	ErrorTypeInternal ErrorType = "internal"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeUnknownStage     ErrorCode = "unknown_stage"
	ErrorCodeUnknownProvider  ErrorCode = "unknown_provider"
	ErrorCodeNoProvider       ErrorCode = "no_provider"
	ErrorCodeUnknownPlatform  ErrorCode = "unknown_platform"
	ErrorCodeUnknownPlugin    ErrorCode = "unknown_plugin"
	ErrorCodeTaskSetClosed    ErrorCode = "task_set_closed"
	ErrorCodeNotSupported     ErrorCode = "not_supported"
	ErrorCodeRateLimitReached ErrorCode = "rate_limit_reached"
)

// Error is the canonical error returned by the bot's components.
type Error struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode is the suggested HTTP status code for the ingress server
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is matches errors with the same type and code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeProvider, ErrorTypePlatform:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// Sentinels for errors.Is checks. Returned errors carry a specific message.
var (
	ErrUnknownStage    = NewError(ErrorTypeNotFound, "unknown stage").WithCode(ErrorCodeUnknownStage)
	ErrUnknownProvider = NewError(ErrorTypeNotFound, "unknown provider").WithCode(ErrorCodeUnknownProvider)
	ErrNoProvider      = NewError(ErrorTypeNotFound, "no enabled provider").WithCode(ErrorCodeNoProvider)
	ErrUnknownPlatform = NewError(ErrorTypeNotFound, "unknown platform").WithCode(ErrorCodeUnknownPlatform)
	ErrUnknownPlugin   = NewError(ErrorTypeNotFound, "unknown plugin").WithCode(ErrorCodeUnknownPlugin)
	ErrTaskSetClosed   = NewError(ErrorTypeInternal, "task set is shutting down").WithCode(ErrorCodeTaskSetClosed)
	ErrNotSupported    = NewError(ErrorTypeInvalidRequest, "not supported").WithCode(ErrorCodeNotSupported)
)

// Convenience constructors for common errors

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	return NewError(ErrorTypeInvalidRequest, message)
}

// ErrPermission creates a permission error.
func ErrPermission(message string) *Error {
	return NewError(ErrorTypePermission, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(code ErrorCode, message string) *Error {
	return NewError(ErrorTypeNotFound, message).WithCode(code)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *Error {
	return NewError(ErrorTypeRateLimit, message).
		WithCode(ErrorCodeRateLimitReached)
}

// ErrProvider wraps a provider failure.
func ErrProvider(provider string, err error) *Error {
	return NewError(ErrorTypeProvider, fmt.Sprintf("%s: %v", provider, err))
}

// ErrPlatform wraps a platform delivery failure.
func ErrPlatform(platform string, err error) *Error {
	return NewError(ErrorTypePlatform, fmt.Sprintf("%s: %v", platform, err))
}
