package spec

import (
	"errors"
	"fmt"
)

// ErrSchema is the sentinel for malformed graph descriptions.
// All load-time failures wrap it for errors.Is checks.
var ErrSchema = errors.New("schema error")

// SchemaError reports a malformed description: unknown keys, a state field
// outside the closed type set, an unknown node type, or an unreadable data
// file. It is fatal at load and never recovered.
type SchemaError struct {
	// Field is the offending field path (e.g. "nodes.fan.type"), when known.
	Field string
	// Msg is a deterministic description of the violation.
	Msg string
	// Err is the underlying error, if any (e.g. from yaml.Unmarshal).
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema error: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("schema error: %s", e.Msg)
}

// Unwrap returns ErrSchema so callers can match with errors.Is.
func (e *SchemaError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSchema
}

// Is reports ErrSchema identity regardless of a wrapped cause.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(field, format string, args ...any) *SchemaError {
	return &SchemaError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
