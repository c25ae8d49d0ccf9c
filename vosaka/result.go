package vosaka

import (
	"context"

	"github.com/VennDev/VOsaka/vresult"
)

// ResultHandle is what Await returns: a live reference to a spawned,
// awaited task. It is itself a Runnable, so spawning an Await's handle
// from within another task composes naturally, and it separately offers a
// blocking Wait for callers sitting outside any task body.
type ResultHandle struct {
	sched  *Scheduler
	taskID TaskID
}

// TaskID returns the id of the underlying spawned task.
func (rh *ResultHandle) TaskID() TaskID { return rh.taskID }

// Run drives the awaited task via Checkpoint until it terminates, then
// returns its (value, error) exactly once. Composing spawn(await(x))
// relies on this: the outer task just sees another Runnable.
func (rh *ResultHandle) Run(y *Yielder) (any, error) {
	for {
		t, ok := rh.sched.tasks[rh.taskID]
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
	return rh.sched.collectResult(rh.taskID)
}

// Wait blocks the caller (by driving the scheduler's run loop directly)
// until the awaited task terminates, then returns its outcome as a
// vresult.Result. Use this from outside any task body; from inside one,
// prefer Yielder.Await or spawn(await(x)).
func (rh *ResultHandle) Wait(ctx context.Context) (vresult.Result, error) {
	stop := func() bool {
		t, ok := rh.sched.tasks[rh.taskID]
		return ok && t.terminal
	}
	if err := rh.sched.runUntil(ctx, stop); err != nil {
		return vresult.Result{}, err
	}
	val, err := rh.sched.collectResult(rh.taskID)
	return vresult.New(val, err), nil
}
