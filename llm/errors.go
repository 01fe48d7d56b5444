package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying LLM errors.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ProviderError is a transport or API failure from a model endpoint.
// Whether it is retryable depends on the status; the client wraps it in a
// TransientError or FatalError accordingly.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s provider error: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.Status, e.Body)
}

// RateLimitError indicates the endpoint throttled the request. Callers may
// retry with backoff; the client treats it as transient.
type RateLimitError struct {
	Provider string
	Body     string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Body)
}

// IsRateLimited reports whether the error chain contains a rate limit.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
