package core

import (
	"errors"
	"fmt"
	"time"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// This lets errors.Is(err, ErrElementNotFound) match copies made by the With* helpers.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementNotInteractable = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "element_not_interactable",
		Message:  "element not interactable",
	}

	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}

	ErrConnection = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "connection_error",
		Message:  "could not connect to automation service",
	}
	ErrSession = &ExecutionError{
		Category: ErrCategorySession,
		Code:     "session_error",
		Message:  "session error",
	}

	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}

	ErrPlatformNotSupported = &ExecutionError{
		Category: ErrCategoryPlatform,
		Code:     "platform_not_supported",
		Message:  "not supported on this platform",
	}

	ErrScreenshot = &ExecutionError{
		Category: ErrCategoryNative,
		Code:     "screenshot_failed",
		Message:  "screenshot failed",
	}
	ErrNative = &ExecutionError{
		Category: ErrCategoryNative,
		Code:     "native_error",
		Message:  "native automation error",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// ElementNotFound returns ErrElementNotFound annotated with the locator description.
func ElementNotFound(locator string) *ExecutionError {
	return ErrElementNotFound.
		WithMessage(fmt.Sprintf("element not found: %s", locator)).
		WithDetails(map[string]interface{}{"locator": locator})
}

// NotInteractable returns ErrElementNotInteractable with a reason.
func NotInteractable(reason string) *ExecutionError {
	return ErrElementNotInteractable.WithMessage("element not interactable: " + reason)
}

// ConnectionError returns ErrConnection with a message and optional cause.
func ConnectionError(msg string, cause error) *ExecutionError {
	return ErrConnection.WithMessage("connection error: " + msg).WithCause(cause)
}

// SessionError returns ErrSession with a message.
func SessionError(msg string) *ExecutionError {
	return ErrSession.WithMessage("session error: " + msg)
}

// ConfigError returns ErrInvalidConfig with a message.
func ConfigError(msg string) *ExecutionError {
	return ErrInvalidConfig.WithMessage("configuration error: " + msg)
}

// PlatformNotSupported returns ErrPlatformNotSupported naming what is missing.
func PlatformNotSupported(what string) *ExecutionError {
	return ErrPlatformNotSupported.
		WithMessage("not supported: " + what).
		WithDetails(map[string]interface{}{"operation": what})
}

// ScreenshotError returns ErrScreenshot with a reason and optional cause.
func ScreenshotError(reason string, cause error) *ExecutionError {
	return ErrScreenshot.WithMessage("screenshot failed: " + reason).WithCause(cause)
}

// NativeError wraps a backend failure, tagging the platform it came from.
func NativeError(platform string, cause error) *ExecutionError {
	return ErrNative.
		WithMessage(platform + " error").
		WithDetails(map[string]interface{}{"platform": platform}).
		WithCause(cause)
}

// TimeoutError is returned by the wait engine when its deadline expires.
// Last holds the final condition error for diagnostics only; it is not part of
// the unwrap chain, so errors.Is sees a timeout and nothing else.
type TimeoutError struct {
	Timeout   time.Duration
	Attempts  int
	Condition string
	Last      error
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout after %v: condition not met after %d attempts", e.Timeout, e.Attempts)
	if e.Condition != "" {
		msg += " (" + e.Condition + ")"
	}
	return msg
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	return ok && t.Code == ErrTimeout.Code
}

// CategoryOf returns the category of err, or ErrCategoryNone when err carries none.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return ErrCategoryTimeout
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// IsRetryable reports whether err is a recoverable outcome a caller may retry or branch on.
// Unclassified errors are treated as not retryable.
func IsRetryable(err error) bool {
	return CategoryOf(err).Recoverable()
}
