package core

// ErrorCategory classifies an error so callers can branch on its kind.
type ErrorCategory int

const (
	ErrCategoryNone        ErrorCategory = iota // No error
	ErrCategoryElement                          // Locator matched nothing
	ErrCategoryInteraction                      // Element found but not ready for the action
	ErrCategoryTimeout                          // Wait deadline exceeded
	ErrCategoryConnection                       // Native automation service unreachable
	ErrCategorySession                          // Session or platform used in the wrong state
	ErrCategoryConfig                           // Invalid configuration, fail fast before connect
	ErrCategoryPlatform                         // Capability the backend cannot perform at all
	ErrCategoryNative                           // Wrapped native/backend failure
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryElement:
		return "element"
	case ErrCategoryInteraction:
		return "interaction"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategorySession:
		return "session"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryPlatform:
		return "platform"
	case ErrCategoryNative:
		return "native"
	default:
		return "unknown"
	}
}

// Recoverable reports whether errors of this category are expected outcomes
// a caller can branch on or retry (by waiting or reconnecting).
func (c ErrorCategory) Recoverable() bool {
	switch c {
	case ErrCategoryElement, ErrCategoryInteraction, ErrCategoryTimeout,
		ErrCategoryConnection, ErrCategorySession:
		return true
	}
	return false
}
