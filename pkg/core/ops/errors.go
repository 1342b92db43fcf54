// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidGraphError reports a non-recoverable problem in the definition of an op: unsupported element type,
// missing input, malformed attributes, etc.
type InvalidGraphError struct {
	// Op is the name (or identifier, if it has no name) of the offending op.
	Op string

	Err error
}

// Error implements the error interface.
func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("invalid graph: op %q: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvalidGraphError) Unwrap() error { return e.Err }

// Cause returns the underlying error, for github.com/pkg/errors.Cause.
func (e *InvalidGraphError) Cause() error { return e.Err }

// Format implements fmt.Formatter, so "%+v" prints the stack trace of the underlying error.
func (e *InvalidGraphError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "invalid graph: op %q: %+v", e.Op, e.Err)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// invalidGraphf creates an InvalidGraphError for the op with the given name.
func invalidGraphf(opName string, format string, args ...any) *InvalidGraphError {
	return &InvalidGraphError{Op: opName, Err: errors.Errorf(format, args...)}
}

// AsInvalidGraph wraps err as an InvalidGraphError attributed to opName, unless it already is one.
func AsInvalidGraph(opName string, err error) error {
	if err == nil {
		return nil
	}
	var invalid *InvalidGraphError
	if errors.As(err, &invalid) {
		return err
	}
	return &InvalidGraphError{Op: opName, Err: err}
}
