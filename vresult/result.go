// Package vresult implements a value-or-error wrapper for callers sitting
// outside any task body who want the outcome of vosaka.Scheduler's Await
// without driving the run loop themselves step by step.
//
// This package deliberately does not import vosaka (vosaka imports
// vresult for ResultHandle.Wait's return type, so the reverse would
// cycle). Expect still needs to classify its panic as the scheduler's
// Runtime error, though, so it wraps internal/errtag's ErrRuntime
// directly rather than a vresult-local sentinel unrelated to vosaka's
// taxonomy - errors.Is(p, vosaka.ErrRuntime) holds for any Expect panic
// because vosaka.ErrRuntime is that same errtag value.
package vresult

import (
	"fmt"

	"github.com/VennDev/VOsaka/internal/errtag"
)

// Result holds either a value or an error, never both meaningfully.
type Result struct {
	Value any
	Err   error
}

// New builds a Result from a (value, error) pair, the shape every
// Runnable and every collaborator method returns.
func New(value any, err error) Result {
	return Result{Value: value, Err: err}
}

// Ok reports whether the Result holds a value rather than an error.
func (r Result) Ok() bool { return r.Err == nil }

// Error returns the held error, or nil.
func (r Result) Error() error { return r.Err }

// Unwrap returns the held value, panicking with the held error if there
// is one. Use only where a failure is truly unexpected.
func (r Result) Unwrap() any {
	if r.Err != nil {
		panic(r.Err)
	}
	return r.Value
}

// UnwrapOr returns the held value, or def if the Result holds an error.
func (r Result) UnwrapOr(def any) any {
	if r.Err != nil {
		return def
	}
	return r.Value
}

// Expect returns the held value, panicking with a Runtime error carrying
// msg and the held cause if there is one.
func (r Result) Expect(msg string) any {
	if r.Err != nil {
		panic(fmt.Errorf("%s: %w: %w", msg, errtag.ErrRuntime, r.Err))
	}
	return r.Value
}
