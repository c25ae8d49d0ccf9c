// Package vosaka implements a single-threaded, cooperative task scheduler:
// one ready queue, one run loop, and a goroutine-per-task hand-off
// discipline that gives genuine single-logical-thread-of-control semantics
// without a stackful-coroutine library (see Yielder).
//
// The module name and the "V" prefix on every collaborator package
// (vchan, vstream, vnet, vresult) honor the project this runtime is
// ported from; the implementation itself is new Go, not a transliteration.
package vosaka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/VennDev/VOsaka/internal/deadlineindex"
	"github.com/VennDev/VOsaka/internal/metrics"
	"github.com/VennDev/VOsaka/internal/watchdog"
)

// Scheduler owns the ready queue Q, the per-task side tables (timeouts,
// defers, unread errors), the repeater list, and the ambient integrations
// (watchdog, metrics, logging). All of its state is mutated only from the
// goroutine that calls into it — Spawn, Join, Select, Await, Run, the
// setters — which is what lets the run loop itself avoid any locking: a
// task body only ever touches scheduler state indirectly, through its
// Yielder, whose publish/resume hand-off is what serializes it onto that
// same calling goroutine.
type Scheduler struct {
	idCounter uint64
	tasks     map[TaskID]*Task
	q         *taskQueue

	timeouts  map[TaskID]*Timeout
	deadlines *deadlineindex.Index
	defers    map[TaskID]*Defer

	errors    map[TaskID]error
	errorTime map[TaskID]time.Time

	repeaters []*repeaterRecord

	watchdogCfg watchdog.Config
	watchdog    *watchdog.Watchdog

	metricsReg prometheus.Registerer
	metrics    *metrics.Recorder

	logger         *slog.Logger
	loggingEnabled bool

	maximumPeriod        int
	maximumPeriodEnabled bool
	maxConcurrentTasks   int

	clock func() time.Time

	// running guards runUntil against concurrent or reentrant entry; see
	// runUntil's doc comment.
	running atomic.Bool
}

// NewScheduler builds a ready-to-run Scheduler: maxConcurrentTasks of 100,
// maximumPeriod disabled, logging enabled, watchdog disabled until
// WithMemoryWatchdog sets a soft limit.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:              make(map[TaskID]*Task),
		q:                  &taskQueue{},
		timeouts:           make(map[TaskID]*Timeout),
		deadlines:          deadlineindex.New(),
		defers:             make(map[TaskID]*Defer),
		errors:             make(map[TaskID]error),
		errorTime:          make(map[TaskID]time.Time),
		logger:             defaultLogger(),
		loggingEnabled:     true,
		maxConcurrentTasks: 100,
		clock:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.metrics = metrics.New(s.metricsReg)

	if s.watchdogCfg.SoftLimitMB > 0 {
		wd, err := watchdog.New(s.watchdogCfg, s.logger)
		if err != nil {
			if s.loggingEnabled {
				s.logger.Warn("vosaka: failed to start memory watchdog", "error", err)
			}
		} else {
			s.watchdog = wd
		}
	}
	return s
}

func (s *Scheduler) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *Scheduler) nextTaskID() TaskID {
	s.idCounter++
	if s.idCounter == 0 {
		// wrapped past the platform maximum; 0 is reserved to mean "no task"
		s.idCounter = 1
	}
	return TaskID(s.idCounter)
}

// Spawn enqueues x (coerced to a Runnable per toRunnable) without awaiting
// it. Any failure it eventually produces is logged (when logging is
// enabled) and dropped; it is not kept for later retrieval.
func (s *Scheduler) Spawn(x any) (TaskID, error) {
	return s.spawn(x, false)
}

// Await spawns x as an awaited task and returns a ResultHandle for it. The
// handle is itself a Runnable, so spawning it from within another task's
// body composes naturally.
func (s *Scheduler) Await(x any) (*ResultHandle, error) {
	id, err := s.spawn(x, true)
	if err != nil {
		return nil, err
	}
	return &ResultHandle{sched: s, taskID: id}, nil
}

// Join spawns every xs as an unawaited task, then runs the scheduler until
// the ready queue is fully drained — including whatever those tasks
// themselves go on to spawn.
func (s *Scheduler) Join(ctx context.Context, xs ...any) error {
	for _, x := range xs {
		if _, err := s.spawn(x, false); err != nil {
			return err
		}
	}
	return s.runUntil(ctx, func() bool { return s.q.empty() })
}

// Select spawns every xs as an unawaited task and runs until the first of
// them reaches a terminal status, returning its id. The other tasks are
// left running in the ready queue — Select does not cancel its losers;
// only timeout-expiry and Cleanup abandon a task.
func (s *Scheduler) Select(ctx context.Context, xs ...any) (TaskID, error) {
	ids := make([]TaskID, 0, len(xs))
	for _, x := range xs {
		id, err := s.spawn(x, false)
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}

	var winner TaskID
	stop := func() bool {
		for _, id := range ids {
			if t, ok := s.tasks[id]; ok && t.terminal {
				winner = id
				return true
			}
		}
		return false
	}
	if err := s.runUntil(ctx, stop); err != nil {
		return 0, err
	}
	return winner, nil
}

// Repeat registers factory to be invoked roughly every intervalSeconds,
// each invocation spawned as its own unawaited task. The returned handle
// can be passed to CancelRepeat.
func (s *Scheduler) Repeat(factory Factory, intervalSeconds float64) *RepeaterHandle {
	rec := &repeaterRecord{
		handle:   RepeaterHandle{ID: xid.New()},
		factory:  factory,
		interval: float64(int(intervalSeconds)), // truncated to whole seconds
		lastFire: s.now(),
	}
	s.repeaters = append(s.repeaters, rec)
	h := rec.handle
	return &h
}

// CancelRepeat stops h from firing again. It has no effect on a
// factory-spawned task already in flight.
func (s *Scheduler) CancelRepeat(h RepeaterHandle) {
	for _, r := range s.repeaters {
		if r.handle.ID == h.ID {
			r.canceled = true
		}
	}
}

func (s *Scheduler) tickRepeaters() {
	if len(s.repeaters) == 0 {
		return
	}
	now := s.now()
	live := s.repeaters[:0]
	for _, r := range s.repeaters {
		if r.canceled {
			continue
		}
		if r.fireable(now) {
			if body := r.factory(); body != nil {
				s.spawnRunnable(body, false)
			}
			r.resetTime(now)
		}
		live = append(live, r)
	}
	s.repeaters = live
}

// Retry builds a Runnable that invokes factory up to maxRetries+1 times,
// awaiting each attempt as its own sub-task and sleeping baseDelay
// (multiplied by backoff after every failed attempt) between tries.
// shouldRetry, if non-nil, can stop early by returning false for an error
// that should not be retried. The returned Runnable can be spawned,
// awaited, or joined like any other task body.
func (s *Scheduler) Retry(factory Factory, maxRetries int, baseDelay, backoff float64, shouldRetry func(error) bool) Runnable {
	return RunnableFunc(func(y *Yielder) (any, error) {
		delay := baseDelay
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			body := factory()
			if body == nil {
				return nil, ErrInvalidArgument
			}
			val, err := y.Await(body)
			if err == nil {
				return val, nil
			}
			lastErr = err
			if shouldRetry != nil && !shouldRetry(err) {
				break
			}
			if attempt < maxRetries && delay > 0 {
				if err := y.Sleep(delay); err != nil {
					return nil, err
				}
			}
			if backoff > 0 {
				delay *= backoff
			}
		}
		return nil, fmt.Errorf("%w: exhausted retries: %w", ErrRuntime, lastErr)
	})
}

// Sleep builds a Runnable that suspends for seconds on the scheduler's
// clock before completing with a nil value.
func (s *Scheduler) Sleep(seconds float64) Runnable {
	return RunnableFunc(func(y *Yielder) (any, error) {
		return nil, y.Sleep(seconds)
	})
}

// NewTimeout builds a Timeout expiring seconds from the scheduler's
// current time, for a task body to pass to Yielder.SetTimeout.
func (s *Scheduler) NewTimeout(seconds float64) *Timeout {
	return NewTimeout(s.now(), seconds)
}

// Run drains Q, stepping each ready task once per encounter, until Q is
// empty or the maximumPeriod step budget (if enabled) is spent — whichever
// comes first. Run, Join, Select, and ResultHandle.Wait all drive the same
// run loop and so share one guard: calling any of them while another is
// already active on this Scheduler returns ErrAlreadyRunning rather than
// racing the scheduler's unsynchronized state or deadlocking against
// itself.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.runUntil(ctx, func() bool { return s.q.empty() })
}

// Cleanup empties Q, cancels every tracked task, discards every side
// table, and forces a garbage-collection pass. It is the scheduler
// equivalent of a hard reset and is meant for shutdown, not for use
// between ordinary Run calls.
func (s *Scheduler) Cleanup() {
	for _, t := range s.tasks {
		if !t.terminal && t.cancel != nil {
			t.cancel()
		}
	}
	s.q = &taskQueue{}
	s.tasks = make(map[TaskID]*Task)
	s.timeouts = make(map[TaskID]*Timeout)
	s.deadlines = deadlineindex.New()
	s.defers = make(map[TaskID]*Defer)
	s.errors = make(map[TaskID]error)
	s.errorTime = make(map[TaskID]time.Time)
	s.repeaters = nil

	if s.watchdog != nil {
		s.watchdog.ForceGarbageCollection()
	} else {
		runtime.GC()
	}
}

// SetMaximumPeriod sets the run loop's step budget per Run call.
func (s *Scheduler) SetMaximumPeriod(n int) {
	s.maximumPeriod = n
}

// SetEnableMaximumPeriod toggles whether the step budget is enforced.
func (s *Scheduler) SetEnableMaximumPeriod(enabled bool) {
	s.maximumPeriodEnabled = enabled
}

// SetMaxConcurrentTasks sets K, the per-tick batch size popped off Q.
func (s *Scheduler) SetMaxConcurrentTasks(n int) error {
	if n <= 0 {
		return ErrInvalidArgument
	}
	s.maxConcurrentTasks = n
	return nil
}

// SetEnableLogging toggles whether a failed, unawaited task's error is
// logged before being dropped.
func (s *Scheduler) SetEnableLogging(enabled bool) {
	s.loggingEnabled = enabled
}

// Stats summarizes the scheduler's live state, for introspection and
// tests; it is not part of the run loop itself.
type Stats struct {
	QueueDepth      int
	LiveTasks       int
	PendingTimeouts int
	PendingDefers   int
	UnreadErrors    int
	Repeaters       int
}

// Stats snapshots the scheduler's current load.
func (s *Scheduler) Stats() Stats {
	return Stats{
		QueueDepth:      s.q.len(),
		LiveTasks:       len(s.tasks),
		PendingTimeouts: len(s.timeouts),
		PendingDefers:   len(s.defers),
		UnreadErrors:    len(s.errors),
		Repeaters:       len(s.repeaters),
	}
}

// TaskInfo is a point-in-time snapshot of a task's lifecycle state.
type TaskInfo struct {
	ID       TaskID
	Status   Status
	Terminal bool
	Birth    time.Time
}

// Describe returns a snapshot of task id's lifecycle state. The record
// persists past termination, including after its result has been
// collected, until Cleanup purges it, so a caller can inspect how a task
// ended without having awaited it.
func (s *Scheduler) Describe(id TaskID) (TaskInfo, error) {
	t, ok := s.tasks[id]
	if !ok {
		return TaskInfo{}, ErrTaskNotFound
	}
	return TaskInfo{ID: t.id, Status: t.status, Terminal: t.terminal, Birth: t.birth}, nil
}

// ForgetErrors purges unread errors older than ttl from the errors table,
// bounding the memory a long-running scheduler spends on failures nobody
// ever came back to await. It returns the number purged.
func (s *Scheduler) ForgetErrors(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	now := s.now()
	n := 0
	for id, at := range s.errorTime {
		if now.Sub(at) >= ttl {
			delete(s.errors, id)
			delete(s.errorTime, id)
			n++
		}
	}
	return n
}

func (s *Scheduler) spawn(x any, awaited bool) (TaskID, error) {
	r, err := toRunnable(x)
	if err != nil {
		return 0, err
	}
	return s.spawnRunnable(r, awaited), nil
}

func (s *Scheduler) spawnRunnable(r Runnable, awaited bool) TaskID {
	id := s.nextTaskID()
	t := &Task{id: id, body: r, awaited: awaited, birth: s.now(), status: StatusPending}
	s.tasks[id] = t
	s.q.push(t)
	if s.metrics != nil {
		s.metrics.TaskSpawned()
	}
	return id
}

func (s *Scheduler) collectResult(id TaskID) (any, error) {
	if err, ok := s.errors[id]; ok {
		delete(s.errors, id)
		delete(s.errorTime, id)
		return nil, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.result, nil
}

func (s *Scheduler) setTimeout(id TaskID, t *Timeout) {
	s.timeouts[id] = t
	if dl, ok := t.Deadline(); ok {
		s.deadlines.Set(uint64(id), dl)
	} else {
		s.deadlines.Delete(uint64(id))
	}
}

func (s *Scheduler) clearTimeout(id TaskID) {
	delete(s.timeouts, id)
	s.deadlines.Delete(uint64(id))
}

func (s *Scheduler) setDefer(id TaskID, d *Defer) {
	s.defers[id] = d
}

// expireOverdue force-terminates every non-terminal task whose registered
// deadline has already passed, in deadline order, without waiting for it to
// be popped and stepped again. This is what the skiplist-backed deadline
// index buys over a plain per-task map: the run loop asks "what's overdue"
// once per tick, in sorted order, rather than only discovering a given
// task's own expiry the next time something happens to resume it - which
// matters once a queue holds more tasks than maxConcurrentTasks steps per
// tick, since an overdue task sitting behind others would otherwise keep
// its goroutine alive for ticks after its deadline passed.
func (s *Scheduler) expireOverdue() {
	if s.deadlines.Len() == 0 {
		return
	}
	now := s.now()
	for _, rawID := range s.deadlines.Expired(now) {
		id := TaskID(rawID)
		t, ok := s.tasks[id]
		if !ok || t.terminal {
			s.deadlines.Delete(rawID)
			continue
		}
		if t.started {
			t.cancel()
			<-t.done
		} else {
			t.started = true
		}
		t.err = ErrTimeout
		t.status = StatusTimedOut
		s.finish(t)
	}
}

// runUntil drives the run loop: each tick checks the watchdog, fires any
// due repeaters, pops up to maxConcurrentTasks tasks off Q, and steps each
// in turn, checking stop() after every single step so select()'s
// first-to-finish contract and a maximumPeriod budget both take effect
// immediately rather than only at tick boundaries.
//
// Entry is guarded by s.running: a second call arriving while one is
// already active - a concurrent goroutine, or a callback reaching back into
// the scheduler that is currently stepping it - returns ErrAlreadyRunning
// instead of corrupting the unsynchronized side tables or blocking forever
// on a queue the outer call already owns.
func (s *Scheduler) runUntil(ctx context.Context, stop func() bool) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if ctx == nil {
		ctx = context.Background()
	}
	steps := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !s.checkWatchdog(ctx) {
			if s.metrics != nil {
				s.metrics.WatchdogTripped()
			}
			return ErrResourceExhausted
		}

		// Repeaters are ticked before the stop check: a caller driving Run
		// with an already-empty queue (the common shape for "just let
		// repeaters fire") must still get a chance to enqueue new work each
		// time through the loop, not just when something else is pending.
		s.tickRepeaters()
		s.expireOverdue()

		if stop() {
			return nil
		}
		if s.q.empty() {
			return nil
		}
		batch := s.q.popAll(s.maxConcurrentTasks)
		for i, t := range batch {
			if t.terminal {
				continue
			}
			s.step(t)
			steps++
			if s.metrics != nil {
				s.metrics.Step()
			}
			// A batch is popped off Q in one shot; returning mid-batch must
			// put back whatever this call never got to step, or those tasks
			// would vanish from the queue instead of waiting for the next
			// Run call.
			if stop() {
				s.requeueRemainder(batch[i+1:])
				return nil
			}
			if s.maximumPeriodEnabled && s.maximumPeriod > 0 && steps >= s.maximumPeriod {
				s.requeueRemainder(batch[i+1:])
				return nil
			}
		}
		if s.metrics != nil {
			s.metrics.SetQueueDepth(s.q.len())
		}
	}
}

// requeueRemainder puts back, in order, whatever tail of a popped batch this
// call never got to step.
func (s *Scheduler) requeueRemainder(rest []*Task) {
	for _, t := range rest {
		if !t.terminal {
			s.q.push(t)
		}
	}
}

func (s *Scheduler) checkWatchdog(ctx context.Context) bool {
	if s.watchdog == nil {
		return true
	}
	return s.watchdog.CheckMemoryUsage(ctx)
}

// step runs one task to its next suspension point (or to completion). The
// very first step launches the task's goroutine; every later step sends a
// single resume signal and waits for the matching yield (or the
// goroutine's completion), so at most one goroutine across the whole
// Scheduler is ever doing real work.
func (s *Scheduler) step(t *Task) {
	t.running = true
	t.status = StatusRunning

	if !t.started {
		t.started = true
		ctx, cancel := context.WithCancel(context.Background())
		t.ctx = ctx
		t.cancel = cancel
		t.yielder = newYielder(ctx, s)
		t.done = make(chan struct{})
		body := t.body
		yielder := t.yielder
		go func() {
			defer close(t.done)
			defer func() {
				if r := recover(); r != nil {
					t.result = nil
					t.err = fmt.Errorf("%w: recovered panic: %v", ErrRuntime, r)
				}
			}()
			res, err := body.Run(yielder)
			t.result = res
			t.err = err
		}()
	} else {
		t.yielder.resume <- struct{}{}
	}

	select {
	case msg := <-t.yielder.yieldCh:
		t.running = false
		switch msg.kind {
		case YieldTimeoutKind:
			s.setTimeout(t.id, msg.timeout)
		case YieldDeferKind:
			s.setDefer(t.id, msg.defer_)
		}

		if to, ok := s.timeouts[t.id]; ok && to.Expired(s.now()) {
			t.cancel()
			<-t.done
			t.err = ErrTimeout
			t.status = StatusTimedOut
			s.finish(t)
			return
		}
		if !t.terminal {
			s.q.push(t)
		}

	case <-t.done:
		t.running = false
		if t.err != nil {
			if !errors.Is(t.err, ErrRuntime) {
				t.err = fmt.Errorf("%w: %w", ErrRuntime, t.err)
			}
			t.status = StatusFailed
		} else {
			t.status = StatusCompleted
		}
		s.finish(t)
	}
}

// finish runs the cleanup protocol for a just-terminated task and routes
// its error: logged-and-dropped if nobody is awaiting it, or parked in
// errors[id] for exactly one future collectResult if someone is.
func (s *Scheduler) finish(t *Task) {
	t.terminal = true
	s.runCleanup(t)

	if t.err != nil {
		if t.awaited {
			s.errors[t.id] = t.err
			s.errorTime[t.id] = s.now()
		} else if s.loggingEnabled {
			s.logger.Error("vosaka: task failed without an awaiter", "task_id", uint64(t.id), "error", t.err)
		}
	}
	if s.metrics != nil {
		s.metrics.TaskCompleted(t.status.String())
	}
}

// runCleanup invokes the task's deferred action, if any, driving any
// Runnable it returns to completion synchronously, then drops the task's
// timeout registration.
func (s *Scheduler) runCleanup(t *Task) {
	if d, ok := s.defers[t.id]; ok {
		res, err := d.run()
		if err != nil && s.loggingEnabled {
			s.logger.Warn("vosaka: deferred action failed", "task_id", uint64(t.id), "error", err)
		}
		if r, ok := res.(Runnable); ok {
			s.runInline(r)
		}
		delete(s.defers, t.id)
	}
	s.clearTimeout(t.id)
}

// runInline drives r to completion on its own goroutine, resuming it
// immediately on every yield regardless of kind: a deferred action may not
// suspend the scheduler that is tearing it down, so timeouts and defers r
// itself requests are ignored rather than registered.
func (s *Scheduler) runInline(r Runnable) (any, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	y := newYielder(ctx, s)
	done := make(chan struct{})
	var result any
	var rerr error
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				rerr = fmt.Errorf("%w: recovered panic: %v", ErrRuntime, rec)
			}
		}()
		result, rerr = r.Run(y)
	}()
	for {
		select {
		case <-y.yieldCh:
			y.resume <- struct{}{}
		case <-done:
			return result, rerr
		}
	}
}
