package vosaka

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/VennDev/VOsaka/internal/watchdog"
)

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaximumPeriod sets the initial maximumPeriod pacing limit and
// enables it.
func WithMaximumPeriod(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maximumPeriod = n
			s.maximumPeriodEnabled = true
		}
	}
}

// WithMaxConcurrentTasks sets K, the run loop's per-tick step budget
// (default 100).
func WithMaxConcurrentTasks(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrentTasks = n
		}
	}
}

// WithLoggingEnabled toggles whether non-awaited task failures are logged
// before being dropped.
func WithLoggingEnabled(enabled bool) Option {
	return func(s *Scheduler) { s.loggingEnabled = enabled }
}

// WithMemoryWatchdog configures the memory watchdog's soft RSS limit and
// sampling interval.
func WithMemoryWatchdog(cfg watchdog.Config) Option {
	return func(s *Scheduler) { s.watchdogCfg = cfg }
}

// WithMetricsRegisterer wires the scheduler's metrics into reg. Omit this
// option and metrics calls are no-ops.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) { s.metricsReg = reg }
}

// WithClock overrides the scheduler's notion of "now", for deterministic
// tests of sleep/timeout/repeat.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
