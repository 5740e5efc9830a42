package action

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports a raw action whose shape does not match the fixed
// key set or whose coerced values violate the action JSON Schema.
type SchemaError struct {
	// Index is the position of the action in its batch, or -1.
	Index int

	// Missing lists required keys that were absent, sorted.
	Missing []string

	// Extra lists unknown keys that were present, sorted.
	Extra []string

	// Violations lists JSON Schema failures as "location: message".
	Violations []string

	// Reason describes batch-level shape failures.
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys %v", e.Missing))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, fmt.Sprintf("extra keys %v", e.Extra))
	}
	if len(e.Violations) > 0 {
		parts = append(parts, "violations: "+strings.Join(e.Violations, "; "))
	}
	msg := "action schema error: " + strings.Join(parts, "; ")
	if e.Index >= 0 {
		msg = fmt.Sprintf("actions[%d]: %s", e.Index, msg)
	}
	return msg
}

// ValueError reports a field whose value cannot be accepted: an unknown
// enumeration member, an uncoercible type, or a negative minute count.
type ValueError struct {
	Index  int
	Field  string
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *ValueError) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Index >= 0 {
		msg = fmt.Sprintf("actions[%d]: %s", e.Index, msg)
	}
	return msg
}

// IsSchemaError reports whether err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsValueError reports whether err wraps a *ValueError.
func IsValueError(err error) bool {
	var ve *ValueError
	return errors.As(err, &ve)
}
