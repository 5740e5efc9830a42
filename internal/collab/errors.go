package collab

import (
	"errors"
	"fmt"
)

// Code categorizes collaborator failures.
type Code string

const (
	// CodeNotFound: the addressed message or destination does not exist
	// (possibly not yet, for freshly delivered mail).
	CodeNotFound Code = "not_found"

	// CodeTransient: a timeout or temporary outage; retrying may succeed.
	CodeTransient Code = "transient"

	// CodeRejected: the collaborator refused the request.
	CodeRejected Code = "rejected"

	// CodeUnavailable: the collaborator could not be reached at all.
	CodeUnavailable Code = "unavailable"
)

// Error is a failed collaborator call.
type Error struct {
	Op   string
	Code Code
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	return e.Code == CodeTransient
}

// CodeOf returns the code of a wrapped *Error, or "" for other errors.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found collaborator error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
