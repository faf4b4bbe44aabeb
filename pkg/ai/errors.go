// Package ai provides the error classification shared by all capability
// providers (VAD, STT, LLM, TTS).
package ai

import "errors"

var (
	// ErrRecoverable indicates a temporary provider failure that may succeed
	// if retried: network timeout, rate limiting, momentary unavailability.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal indicates a permanent provider failure: invalid API key,
	// unsupported format, malformed request.
	ErrFatal = errors.New("fatal provider error")
)

// IsRecoverable reports whether err may succeed if retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err is permanent and should not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ProviderError wraps an underlying error with retry classification.
type ProviderError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *ProviderError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(underlying error, message string) error {
	return &ProviderError{Underlying: underlying, Retryable: true, Message: message}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(underlying error, message string) error {
	return &ProviderError{Underlying: underlying, Retryable: false, Message: message}
}
