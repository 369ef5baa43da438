// Package pxerr defines px's structured error shape ({code, what,
// why, fix}) and the stable error codes referenced throughout the
// engine and the CLI's hint subsystem (spec.md §7).
package pxerr

import (
	"fmt"

	"github.com/hashicorp/errwrap"
	"github.com/hashicorp/go-multierror"
)

// Code is a stable, documented error identifier. Codes never change
// meaning once shipped; a new failure mode gets a new code.
type Code string

const (
	CodeManifestDrift   Code = "PX120"
	CodeEnvOutdated     Code = "PX201"
	CodeRuntimeMismatch Code = "PX202"
	CodeNoProjectFound  Code = "no_project_found"
	CodeNotADirectDep   Code = "not_a_direct_dep"
	CodeBusy            Code = "busy"
	CodeInvalidState    Code = "invalid_state"
	CodeLockOutOfDate   Code = "lock_out_of_date"
)

// Error is px's structured error: a stable code, a one-line statement
// of what went wrong, zero or more reasons why, and zero or more
// suggested fixes. Error() renders the code, What and any wrapped
// cause, but not Why or Fix; the CLI and the MCP server both surface
// the error through that string.
type Error struct {
	Code Code
	What string
	Why  []string
	Fix  []string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.What, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.What)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a structured error with no underlying cause.
func New(code Code, what string, why, fix []string) *Error {
	return &Error{Code: code, What: what, Why: why, Fix: fix}
}

// Wrap builds a structured error around an underlying cause, following
// the teacher's own "doing X: %w" wrapping discipline but with a typed
// code attached.
func Wrap(code Code, what string, cause error, why, fix []string) *Error {
	wrapped := errwrap.Wrapf(what+": {{err}}", cause)
	return &Error{Code: code, What: what, Why: why, Fix: fix, cause: wrapped}
}

// Rollback accumulates one or more errors encountered while unwinding a
// failed transaction. Every partial write attempted during rollback is
// appended here rather than discarding earlier failures, so an operator
// sees everything that went wrong, not just the first.
type Rollback struct {
	merr *multierror.Error
}

// Append records an additional rollback-path failure. Nil errors are
// ignored.
func (r *Rollback) Append(err error) {
	if err == nil {
		return
	}
	r.merr = multierror.Append(r.merr, err)
}

// ErrorOrNil returns the accumulated rollback error, or nil if nothing
// was appended.
func (r *Rollback) ErrorOrNil() error {
	if r.merr == nil {
		return nil
	}
	return r.merr.ErrorOrNil()
}
