package vosaka

import (
	"context"
	"time"
)

// TaskID is a task's identity: a monotonic counter that wraps at the
// platform maximum. After wrapping, numbering restarts at 1: 0 is reserved
// to mean "no task" and is never issued. Identity is unique only among live
// tasks; reuse after wraparound is safe because every per-id side-table
// entry is deleted at task completion.
//
// This is deliberately not an xid.ID: xid mints a sortable-but-unordered
// global identifier, which cannot express "the counter wraps". xid is
// kept at the collaborator layer (vchan, vstream, vnet, repeaters) where
// nothing depends on wraparound behavior.
type TaskID uint64

// Status is a task's lifecycle stage, supplementing the core scheduling
// model with an introspection surface (Status/Describe/Stats).
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusTimedOut
	StatusCanceled
)

// String renders a Status for logs and Stats.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Task is a scheduler-owned record: a resumable computation, an identity,
// and per-step flags.
type Task struct {
	id      TaskID
	body    Runnable
	awaited bool // await-flag
	running bool // running-flag: true only during the instant its step executes

	birth  time.Time
	status Status

	result any
	err    error

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	yielder *Yielder
	done    chan struct{} // closed by the task goroutine on return

	// terminal is set exactly once, under the scheduler's single logical
	// thread, when the task's step observes its done channel closed or a
	// timeout/abandonment forces termination.
	terminal bool
}

// ID returns the task's identity.
func (t *Task) ID() TaskID { return t.id }

// Status returns the task's current lifecycle stage.
func (t *Task) Status() Status { return t.status }

// Terminal reports whether the task has finished (any of completed,
// failed, timed out, canceled).
func (t *Task) Terminal() bool { return t.terminal }
