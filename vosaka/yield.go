package vosaka

import (
	"context"
	"time"
)

// YieldKind classifies what a task suspended on: a plain checkpoint, a
// deadline registration, or a cleanup registration. Dispatching on this
// closed sum type rather than the runtime type of an opaque yielded value
// keeps the scheduler's step function a type switch instead of a chain of
// type assertions.
type YieldKind int

const (
	// YieldOther is an opaque "I'm alive, resume me later" checkpoint.
	YieldOther YieldKind = iota
	// YieldTimeoutKind requests the scheduler track a deadline for the task.
	YieldTimeoutKind
	// YieldDeferKind requests the scheduler run a closure at task end.
	YieldDeferKind
)

// yieldMsg is the value exchanged on a task's yield channel.
type yieldMsg struct {
	kind    YieldKind
	timeout *Timeout
	defer_  *Defer
}

// Yielder is the suspension handle passed into a task's Runnable. Each
// method suspends the task's goroutine until the scheduler resumes it (or
// the task's context is canceled, in which case the method returns
// ctx.Err() and the task body must return promptly).
//
// Only one goroutine is ever doing real work at a time across a whole
// Scheduler: the task goroutine blocks on resume immediately after
// publishing a yield, and the scheduler's step blocks on the yield channel
// immediately after sending resume. This is the "channel-and-goroutine"
// resumable-computation pattern the design notes endorse; it preserves a
// single logical thread of control without a stackful-coroutine library.
type Yielder struct {
	ctx     context.Context
	resume  chan struct{}
	yieldCh chan yieldMsg
	sched   *Scheduler
}

func newYielder(ctx context.Context, sched *Scheduler) *Yielder {
	return &Yielder{
		ctx:     ctx,
		resume:  make(chan struct{}),
		yieldCh: make(chan yieldMsg),
		sched:   sched,
	}
}

func (y *Yielder) publish(msg yieldMsg) error {
	select {
	case y.yieldCh <- msg:
	case <-y.ctx.Done():
		return y.ctx.Err()
	}
	select {
	case <-y.resume:
		return nil
	case <-y.ctx.Done():
		return y.ctx.Err()
	}
}

// Checkpoint yields control to the scheduler without requesting anything;
// it is the basic cooperative suspension point that sleep/await/retry build
// on top of.
func (y *Yielder) Checkpoint() error {
	return y.publish(yieldMsg{kind: YieldOther})
}

// SetTimeout registers t as the task's active deadline (replacing any
// previously registered one) and yields once.
func (y *Yielder) SetTimeout(t *Timeout) error {
	return y.publish(yieldMsg{kind: YieldTimeoutKind, timeout: t})
}

// SetDefer registers d as the task's deferred action (replacing any
// previously registered one) and yields once.
func (y *Yielder) SetDefer(d *Defer) error {
	return y.publish(yieldMsg{kind: YieldDeferKind, defer_: d})
}

// Await spawns x as an awaited sub-task and Checkpoints until it
// terminates, returning its (value, error). It is the in-task-body
// convenience form of spawn(await(x)); ResultHandle.Run implements the
// composable form used when a caller wants the handle itself.
//
// Await must not be called from a deferred cleanup closure driven via
// Scheduler.runInline: runInline ignores the kind of every yield it sees
// and resumes immediately, so a cleanup action that awaits a task the
// inline driver isn't advancing would spin forever.
func (y *Yielder) Await(x any) (any, error) {
	if y.sched == nil {
		return nil, ErrInvalidArgument
	}
	id, err := y.sched.spawn(x, true)
	if err != nil {
		return nil, err
	}
	for {
		t, ok := y.sched.tasks[id]
		if !ok {
			return nil, ErrTaskNotFound
		}
		if t.terminal {
			break
		}
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
	}
	return y.sched.collectResult(id)
}

// Sleep Checkpoints repeatedly until seconds have elapsed on the
// scheduler's clock. It is built from a checkpoint loop rather than a real
// OS sleep, since only one goroutine may do real work at a time.
func (y *Yielder) Sleep(seconds float64) error {
	if seconds <= 0 {
		return y.Checkpoint()
	}
	now := y.clockNow()
	deadline := now.Add(time.Duration(seconds * float64(time.Second)))
	for y.clockNow().Before(deadline) {
		if err := y.Checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (y *Yielder) clockNow() time.Time {
	if y.sched != nil {
		return y.sched.now()
	}
	return time.Now()
}

// Context returns the task's context, canceled when the scheduler abandons
// the task (a timeout firing, or an explicit Cleanup). Select losers are
// NOT canceled: the context exists so a task CAN observe abandonment at
// its next Checkpoint, but Select itself never cancels non-winners.
func (y *Yielder) Context() context.Context {
	return y.ctx
}

// Runnable allows any struct to define its own resumable task logic.
type Runnable interface {
	Run(y *Yielder) (any, error)
}

// RunnableFunc adapts a function to the Runnable interface.
type RunnableFunc func(y *Yielder) (any, error)

// Run calls f.
func (f RunnableFunc) Run(y *Yielder) (any, error) { return f(y) }

// Factory produces a fresh Runnable on each call; Spawn, Repeat, and Retry
// all accept factories so that the same task-producing closure can be
// invoked more than once.
type Factory func() Runnable

// toRunnable coerces spawn/repeat/retry/await's accepted inputs
// (Runnable, RunnableFunc, Factory, or a bare func(*Yielder) (any, error))
// into a Runnable: a closure is invoked and its returned value must itself
// be a resumable computation.
func toRunnable(x any) (Runnable, error) {
	switch v := x.(type) {
	case Runnable:
		return v, nil
	case func(y *Yielder) (any, error):
		return RunnableFunc(v), nil
	case Factory:
		r := v()
		if r == nil {
			return nil, ErrInvalidArgument
		}
		return r, nil
	case func() Runnable:
		r := v()
		if r == nil {
			return nil, ErrInvalidArgument
		}
		return r, nil
	default:
		return nil, ErrInvalidArgument
	}
}
