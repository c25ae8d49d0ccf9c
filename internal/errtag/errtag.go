// Package errtag holds the scheduler's error taxonomy as shared sentinel
// values. Both vosaka and vresult need to classify failures with errors.Is
// against the same four sentinels, but vosaka imports vresult (for
// ResultHandle.Wait's return type) - vresult importing vosaka back would be
// a cycle. Hoisting the sentinels one layer down lets both sides compare
// against the same *errors.errorString values without either importing the
// other.
package errtag

import "errors"

var (
	// ErrInvalidArgument is returned when a caller gives the scheduler a
	// nonsensical input: a non-positive maxConcurrentTasks, a factory that
	// did not return a Runnable, or a spawn input that is neither a Runnable
	// nor a factory.
	ErrInvalidArgument = errors.New("vosaka: invalid argument")

	// ErrTimeout is returned when a task exceeds the deadline registered
	// via its most recent Timeout yield.
	ErrTimeout = errors.New("vosaka: task timed out")

	// ErrRuntime wraps any other task failure, including an error a task
	// body returns, a panic recovered from a task body, the terminal error
	// of an exhausted retry, and the cause vresult.Result.Expect panics
	// with.
	ErrRuntime = errors.New("vosaka: task failed")

	// ErrResourceExhausted is returned when the memory watchdog trips.
	ErrResourceExhausted = errors.New("vosaka: resource exhausted")

	// ErrAlreadyRunning is returned by Run/Join/Select/ResultHandle.Wait
	// when another call is already driving the same Scheduler's run loop:
	// a second goroutine calling in concurrently, or a callback (a Defer
	// closure, say) calling back into the scheduler it is already running
	// inside of.
	ErrAlreadyRunning = errors.New("vosaka: scheduler already running")
)
