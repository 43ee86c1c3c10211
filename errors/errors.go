package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates access to a resource owned by another user
	ErrForbidden = errors.New("forbidden")

	// ErrServiceUnavailable indicates a required backend never responded
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrEmbeddingFailure indicates the embedding provider call failed
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrGenerationFailure indicates the language model call failed
	ErrGenerationFailure = errors.New("generation failed")

	// ErrUsageLimit indicates the caller exhausted their plan allowance
	ErrUsageLimit = errors.New("usage limit reached")
)

// WrapError wraps an error with context message and stack
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsForbidden checks if error is a forbidden error
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsGenerationFailure checks if error came from the language model call
func IsGenerationFailure(err error) bool {
	return errors.Is(err, ErrGenerationFailure)
}

// IsUsageLimit checks if error is a plan allowance error
func IsUsageLimit(err error) bool {
	return errors.Is(err, ErrUsageLimit)
}

// IsServiceUnavailable checks if error means a backend never responded
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
