package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Lifecycle errors
	ErrNotInitialized     = errors.New("interceptor not initialized")
	ErrAlreadyInitialized = errors.New("interceptor already initialized")
	ErrAlreadyDestroyed   = errors.New("interceptor already destroyed")

	// Binding errors
	ErrAlreadyBound  = errors.New("target already bound")
	ErrNotBound      = errors.New("no target bound")
	ErrInvalidTarget = errors.New("invalid target")

	// Configuration errors
	ErrMissingAPI           = errors.New("missing observability API facade")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Registry errors
	ErrAlreadyRegistered   = errors.New("interceptor already registered")
	ErrInterceptorNotFound = errors.New("interceptor not found")

	// Discovery errors
	ErrDiscoveryExhausted = errors.New("discovery attempts exhausted")
	ErrDiscoveryStopped   = errors.New("discovery stopped")
)

// InterceptorError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type InterceptorError struct {
	Op      string // Operation that failed (e.g., "redux.SetStore")
	Variant string // Interceptor variant involved (e.g., "redux", "globals")
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *InterceptorError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.Variant != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.Variant, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Variant)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *InterceptorError) Unwrap() error {
	return e.Err
}

// NewInterceptorError creates a new InterceptorError
func NewInterceptorError(op, variant string, err error) *InterceptorError {
	return &InterceptorError{
		Op:      op,
		Variant: variant,
		Err:     err,
	}
}

// IsLifecycleError checks if an error is a lifecycle-misuse condition.
// These are reported but never fatal: the operation that produced them
// already degraded to a no-op.
func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrAlreadyDestroyed)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingAPI) ||
		errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrInvalidConfiguration)
}
