package engine

import (
	"errors"
	"fmt"
)

// HandlerError reports a caller-supplied hit/miss handler that failed.
//
// Handler failures never propagate into engine control flow. The engine
// wraps them in a HandlerError and hands them to the diagnostics hook
// (WithDiagnostics); registry state is already consistent by then, because
// a request is removed before its handler runs.
type HandlerError struct {
	// Code identifies the failure category.
	Code HandlerErrorCode

	// RequestID identifies the resolved request.
	RequestID RequestID

	// Subject is the request's subject.
	Subject Subject

	// Outcome is the resolution whose handler failed.
	Outcome Outcome

	// Err is the handler's returned error, or the recovered panic value.
	Err error
}

// HandlerErrorCode categorizes handler failures.
type HandlerErrorCode string

const (
	// ErrCodeHandlerFailed indicates the handler returned a non-nil error.
	ErrCodeHandlerFailed HandlerErrorCode = "HANDLER_FAILED"

	// ErrCodeHandlerPanic indicates the handler panicked and was recovered.
	ErrCodeHandlerPanic HandlerErrorCode = "HANDLER_PANIC"
)

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %s handler for request %d (subject=%s): %v",
		e.Code, e.Outcome, e.RequestID, e.Subject, e.Err)
}

// Unwrap returns the underlying handler error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerPanic returns true if err is a HandlerError for a recovered panic.
// Uses errors.As to handle wrapped errors.
func IsHandlerPanic(err error) bool {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Code == ErrCodeHandlerPanic
	}
	return false
}

// IsHandlerError returns true if err is any HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}
