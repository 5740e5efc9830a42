// Package reasoning is the boundary to the external reasoning engine: a
// prompt and an output JSON Schema go in, one JSON object comes out.
package reasoning

import (
	"context"
	"errors"
	"fmt"
)

// Request is one reasoning invocation.
type Request struct {
	// Pass names the pipeline pass, e.g. "parse" or "replan".
	Pass string

	Prompt string

	// Schema is the JSON Schema the output must follow.
	Schema map[string]any

	// Dir receives per-invocation files (schema, last message, stderr).
	// Engines that need no files ignore it.
	Dir string
}

// Engine runs a reasoning request and returns the raw output text.
type Engine interface {
	Complete(ctx context.Context, req Request) ([]byte, error)
}

// ErrorKind categorizes reasoning failures.
type ErrorKind string

const (
	KindExec        ErrorKind = "exec"
	KindEmpty       ErrorKind = "empty"
	KindInvalidJSON ErrorKind = "invalid_json"
	KindNotObject   ErrorKind = "not_object"
)

// Error is a fatal reasoning failure: the engine could not run or its
// output held no usable JSON object.
type Error struct {
	Kind   ErrorKind
	Pass   string
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("reasoning %s", e.Kind)
	if e.Pass != "" {
		msg += " (pass=" + e.Pass + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err wraps a *Error.
func IsError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
