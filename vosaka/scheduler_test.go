package vosaka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/VennDev/VOsaka/internal/watchdog"
)

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertError(t *testing.T, err error, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func assertEqual(t *testing.T, got, want any) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// fakeClock gives tests control over "now" without a real sleep, so
// timeout/sleep/repeat scenarios stay deterministic.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func TestAwait_ReturnsValue(t *testing.T) {
	s := NewScheduler()
	handle, err := s.Await(RunnableFunc(func(y *Yielder) (any, error) {
		return "hello", nil
	}))
	assertNoError(t, err)

	result, err := handle.Wait(context.Background())
	assertNoError(t, err)
	assertEqual(t, result.Ok(), true)
	assertEqual(t, result.Value, "hello")
}

func TestAwait_PropagatesError(t *testing.T) {
	s := NewScheduler()
	boom := errors.New("boom")
	handle, err := s.Await(RunnableFunc(func(y *Yielder) (any, error) {
		return nil, boom
	}))
	assertNoError(t, err)

	result, err := handle.Wait(context.Background())
	assertNoError(t, err)
	assertError(t, result.Error(), boom)
}

func TestJoin_InterleavesTwoSleepers(t *testing.T) {
	s := NewScheduler()
	var order []string
	a := RunnableFunc(func(y *Yielder) (any, error) {
		order = append(order, "a-start")
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		order = append(order, "a-end")
		return nil, nil
	})
	b := RunnableFunc(func(y *Yielder) (any, error) {
		order = append(order, "b-start")
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		order = append(order, "b-end")
		return nil, nil
	})

	assertNoError(t, s.Join(context.Background(), a, b))

	// Both tasks run one step before either runs its second: FIFO batching
	// interleaves them rather than draining one to completion first.
	assertEqual(t, order[0], "a-start")
	assertEqual(t, order[1], "b-start")
	assertEqual(t, order[2], "a-end")
	assertEqual(t, order[3], "b-end")
}

func TestSelect_ReturnsFirstWinner(t *testing.T) {
	s := NewScheduler()
	fast := RunnableFunc(func(y *Yielder) (any, error) {
		return "fast", nil
	})
	slow := RunnableFunc(func(y *Yielder) (any, error) {
		for i := 0; i < 5; i++ {
			if err := y.Checkpoint(); err != nil {
				return nil, err
			}
		}
		return "slow", nil
	})

	winner, err := s.Select(context.Background(), slow, fast)
	assertNoError(t, err)

	info, err := s.Describe(winner)
	assertNoError(t, err)
	assertEqual(t, info.Status, StatusCompleted)
}

func TestTimeout_FiresAndFailsTheTask(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(WithClock(clock.Now))
	s.SetMaximumPeriod(1)
	s.SetEnableMaximumPeriod(true)

	handle, err := s.Await(RunnableFunc(func(y *Yielder) (any, error) {
		if err := y.SetTimeout(s.NewTimeout(1)); err != nil {
			return nil, err
		}
		for {
			if err := y.Checkpoint(); err != nil {
				return nil, err
			}
		}
	}))
	assertNoError(t, err)

	// One step registers the 1-second deadline against the clock as it
	// stands right now, before any advance.
	assertNoError(t, s.Run(context.Background()))

	// Advance the clock past that deadline, then let the run loop's
	// per-tick overdue scan terminate the task without stepping it again.
	clock.Advance(2 * time.Second)
	s.SetEnableMaximumPeriod(false)
	result, err := handle.Wait(context.Background())
	assertNoError(t, err)
	assertError(t, result.Error(), ErrTimeout)

	info, err := s.Describe(handle.TaskID())
	assertNoError(t, err)
	assertEqual(t, info.Status, StatusTimedOut)
}

func TestMaximumPeriod_CapsStepsPerRun(t *testing.T) {
	s := NewScheduler(WithMaxConcurrentTasks(1000))
	s.SetMaximumPeriod(10)
	s.SetEnableMaximumPeriod(true)

	var steps int32
	factory := func() Runnable {
		return RunnableFunc(func(y *Yielder) (any, error) {
			for i := 0; i < 1000; i++ {
				atomic.AddInt32(&steps, 1)
				if err := y.Checkpoint(); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	}
	for i := 0; i < 100; i++ {
		if _, err := s.Spawn(factory()); err != nil {
			t.Fatal(err)
		}
	}

	assertNoError(t, s.Run(context.Background()))
	if atomic.LoadInt32(&steps) != 10 {
		t.Fatalf("expected exactly 10 steps in one Run call, got %d", steps)
	}
	if s.Stats().QueueDepth == 0 {
		t.Fatal("expected unfinished tasks to remain queued after the budget was spent")
	}

	// A second Run call picks up where the first left off, with its own
	// fresh budget.
	assertNoError(t, s.Run(context.Background()))
	if atomic.LoadInt32(&steps) != 20 {
		t.Fatalf("expected 20 total steps after a second Run call, got %d", steps)
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	s := NewScheduler()
	var attempts int32
	factory := func() Runnable {
		return RunnableFunc(func(y *Yielder) (any, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		})
	}

	handle, err := s.Await(s.Retry(factory, 5, 0, 1, nil))
	assertNoError(t, err)

	result, err := handle.Wait(context.Background())
	assertNoError(t, err)
	assertEqual(t, result.Ok(), true)
	assertEqual(t, result.Value, "ok")
	assertEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestRetry_ExhaustsAndFails(t *testing.T) {
	s := NewScheduler()
	cause := errors.New("permanent")
	factory := func() Runnable {
		return RunnableFunc(func(y *Yielder) (any, error) {
			return nil, cause
		})
	}

	handle, err := s.Await(s.Retry(factory, 2, 0, 1, nil))
	assertNoError(t, err)

	result, err := handle.Wait(context.Background())
	assertNoError(t, err)
	assertError(t, result.Error(), ErrRuntime)
	// The last attempt's cause must be recoverable programmatically, not
	// just present in the formatted message.
	assertError(t, result.Error(), cause)
}

func TestDefer_RunsExactlyOnceOnCompletion(t *testing.T) {
	s := NewScheduler()
	var cleanups int32
	_, err := s.Await(RunnableFunc(func(y *Yielder) (any, error) {
		if err := y.SetDefer(NewDefer(func(args ...any) (any, error) {
			atomic.AddInt32(&cleanups, 1)
			return nil, nil
		})); err != nil {
			return nil, err
		}
		return "done", nil
	}))
	assertNoError(t, err)

	assertNoError(t, s.Run(context.Background()))
	if atomic.LoadInt32(&cleanups) != 1 {
		t.Fatalf("expected exactly one cleanup invocation, got %d", cleanups)
	}
}

func TestSpawn_ErrorWithoutAwaiterIsDroppedNotPanicked(t *testing.T) {
	s := NewScheduler()
	s.SetEnableLogging(false)
	id, err := s.Spawn(RunnableFunc(func(y *Yielder) (any, error) {
		return nil, errors.New("nobody is watching")
	}))
	assertNoError(t, err)

	assertNoError(t, s.Run(context.Background()))
	info, err := s.Describe(id)
	assertNoError(t, err)
	assertEqual(t, info.Status, StatusFailed)
	assertEqual(t, s.Stats().UnreadErrors, 0)
}

func TestRepeat_FiresOnInterval(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(WithClock(clock.Now))

	var fired int32
	handle := s.Repeat(func() Runnable {
		return RunnableFunc(func(y *Yielder) (any, error) {
			atomic.AddInt32(&fired, 1)
			return nil, nil
		})
	}, 1)

	for i := 0; i < 3; i++ {
		clock.Advance(1 * time.Second)
		assertNoError(t, s.Run(context.Background()))
	}
	if atomic.LoadInt32(&fired) != 3 {
		t.Fatalf("expected 3 firings, got %d", fired)
	}

	s.CancelRepeat(*handle)
	clock.Advance(1 * time.Second)
	assertNoError(t, s.Run(context.Background()))
	if atomic.LoadInt32(&fired) != 3 {
		t.Fatalf("expected no further firings after cancel, got %d", fired)
	}
}

func TestForgetErrors_PurgesOldUnreadErrors(t *testing.T) {
	clock := newFakeClock()
	s := NewScheduler(WithClock(clock.Now))
	s.SetEnableLogging(false)

	_, err := s.Await(RunnableFunc(func(y *Yielder) (any, error) {
		return nil, errors.New("never collected")
	}))
	assertNoError(t, err)
	assertNoError(t, s.Run(context.Background()))

	if s.Stats().UnreadErrors != 1 {
		t.Fatalf("expected 1 unread error, got %d", s.Stats().UnreadErrors)
	}

	clock.Advance(time.Hour)
	purged := s.ForgetErrors(time.Minute)
	assertEqual(t, purged, 1)
	assertEqual(t, s.Stats().UnreadErrors, 0)
}

func TestRun_ErrAlreadyRunningWhileActive(t *testing.T) {
	s := NewScheduler()
	s.running.Store(true)
	defer s.running.Store(false)

	assertError(t, s.Run(context.Background()), ErrAlreadyRunning)
}

func TestRun_ErrAlreadyRunningOnReentryFromDefer(t *testing.T) {
	s := NewScheduler()
	var nestedErr error
	_, err := s.Spawn(RunnableFunc(func(y *Yielder) (any, error) {
		return nil, y.SetDefer(NewDefer(func(args ...any) (any, error) {
			// A cleanup closure calling back into the scheduler it is
			// itself being cleaned up inside of must not deadlock against
			// the run loop that is still active on this same goroutine.
			nestedErr = s.Run(context.Background())
			return nil, nil
		}))
	}))
	assertNoError(t, err)

	assertNoError(t, s.Run(context.Background()))
	assertError(t, nestedErr, ErrAlreadyRunning)
}

func TestWatchdog_TripIncrementsMetricAndHaltsRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	// A 1MB soft limit with CheckInterval 1 is certain to trip on the very
	// first sample: no real process runs this scheduler's tests in 1MB of
	// resident memory.
	s := NewScheduler(
		WithMemoryWatchdog(watchdog.Config{SoftLimitMB: 1, CheckInterval: 1}),
		WithMetricsRegisterer(reg),
	)
	_, err := s.Spawn(RunnableFunc(func(y *Yielder) (any, error) {
		return nil, nil
	}))
	assertNoError(t, err)

	assertError(t, s.Run(context.Background()), ErrResourceExhausted)
	if got := gatherCounterValue(t, reg, "vosaka_watchdog_trips_total"); got != 1 {
		t.Fatalf("expected vosaka_watchdog_trips_total == 1, got %v", got)
	}
}

// gatherCounterValue reads a single no-label counter's current value
// straight out of reg, since the Recorder backing it lives in an internal
// package this test can't reach directly.
func gatherCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	assertNoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestTaskID_WrapsAtPlatformMaximum(t *testing.T) {
	s := NewScheduler()
	s.idCounter = ^uint64(0)
	id, err := s.Spawn(RunnableFunc(func(y *Yielder) (any, error) { return nil, nil }))
	assertNoError(t, err)
	assertEqual(t, id, TaskID(1))
}
