// Package errors provides structured error handling for notegraph.
//
// Every component failure is classified by Kind so that callers can decide
// between retrying, skipping an item, or surfacing the error to the user.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindNotFound indicates a missing file, chunk, or workflow.
	KindNotFound Kind = "not_found"
	// KindAlreadyExists indicates a duplicate identity where uniqueness is required.
	KindAlreadyExists Kind = "already_exists"
	// KindInvalidInput indicates malformed markdown, bad front-matter, or an unknown format.
	KindInvalidInput Kind = "invalid_input"
	// KindTimeout indicates a deadline was exceeded.
	KindTimeout Kind = "timeout"
	// KindDependency indicates a downstream collaborator failure (object store,
	// embedding provider, database).
	KindDependency Kind = "dependency"
	// KindConflict indicates an illegal state transition, e.g. starting a
	// workflow that is not pending.
	KindConflict Kind = "conflict"
	// KindCancelled indicates the operation was cancelled by the caller.
	KindCancelled Kind = "cancelled"
	// KindInternal indicates an unexpected internal error.
	KindInternal Kind = "internal"
)

// Error is the structured error type for notegraph.
type Error struct {
	// Kind classifies the error.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind, enabling errors.Is with sentinel kinds.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an existing error.
// Returns nil if err is nil. The error return type keeps that nil a nil
// interface at call sites that propagate the result directly.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// NotFound creates a not-found error for the named resource.
func NotFound(resource, id string) *Error {
	return Newf(KindNotFound, "%s %q not found", resource, id)
}

// InvalidInput creates an invalid-input error.
func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message)
}

// Dependency creates a downstream-collaborator error.
// Dependency errors are retryable.
func Dependency(message string, cause error) *Error {
	return &Error{Kind: KindDependency, Message: message, Cause: cause}
}

// Conflict creates a conflict error for an illegal state transition.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Timeout creates a timeout error.
func Timeout(message string) *Error {
	return New(KindTimeout, message)
}

// KindOf extracts the Kind from an error chain.
// Returns KindInternal for non-structured errors, and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the operation that produced err can be retried.
// Timeouts and dependency failures are retryable; everything else is not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindDependency:
		return true
	}
	return false
}
