package vosaka

// Defer is the yield value that requests the scheduler invoke a closure
// exactly once when the owning task terminates, normally, by failure, or
// by timeout. If the closure returns a Runnable, the scheduler drives it
// to completion synchronously: its own sub-yields are ignored, since
// cleanup may not suspend.
type Defer struct {
	fn   func(args ...any) (any, error)
	args []any
}

// NewDefer captures fn and args for later, single invocation.
func NewDefer(fn func(args ...any) (any, error), args ...any) *Defer {
	return &Defer{fn: fn, args: args}
}

// run invokes the closure. If it returns a (Runnable, error) pair whose
// first value satisfies Runnable, the caller is responsible for driving it
// to completion inline (see Scheduler.runCleanup, which hands it to
// Scheduler.runInline).
func (d *Defer) run() (any, error) {
	if d == nil || d.fn == nil {
		return nil, nil
	}
	return d.fn(d.args...)
}
