// Package watchdog implements the scheduler's memory watchdog: a
// best-effort backpressure signal for the run loop, sampling the
// process's real resident set size via
// github.com/shirou/gopsutil/v4/process rather than a stand-in counter.
package watchdog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// Config configures a Watchdog: a soft RSS limit plus how often to
// actually sample it.
type Config struct {
	// SoftLimitMB is the RSS ceiling, in megabytes. Zero disables the
	// watchdog (CheckMemoryUsage always reports ok).
	SoftLimitMB uint64
	// CheckInterval is how many calls to CheckMemoryUsage between actual
	// RSS samples; sampling is expensive relative to a scheduler tick, so
	// this amortizes the cost by sampling residency periodically instead
	// of on every call.
	CheckInterval int
	// GCInterval is how many calls to CollectGarbage between advisory GC
	// cycles.
	GCInterval int
}

// Watchdog caps RSS and advises the run loop to stop/GC.
type Watchdog struct {
	cfg    Config
	proc   *process.Process
	logger *slog.Logger

	calls   int
	gcCalls int
	lastOK  bool
}

// New constructs a Watchdog for the current process.
func New(cfg Config, logger *slog.Logger) (*Watchdog, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Watchdog{cfg: cfg, logger: logger, lastOK: true}
	if cfg.SoftLimitMB == 0 {
		return w, nil
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	w.proc = p
	return w, nil
}

// Init takes one RSS sample when the watchdog is enabled and returns any
// sampling error; it does nothing when the watchdog is disabled.
func (w *Watchdog) Init(ctx context.Context) error {
	if w.cfg.SoftLimitMB == 0 || w.proc == nil {
		return nil
	}
	_, err := w.proc.MemoryInfoWithContext(ctx)
	return err
}

// CheckMemoryUsage samples RSS once per CheckInterval calls. If the sampled
// RSS exceeds 80% of SoftLimitMB it forces a GC cycle; if RSS still exceeds
// SoftLimitMB afterwards, it reports false so the run loop stops early.
func (w *Watchdog) CheckMemoryUsage(ctx context.Context) bool {
	if w.cfg.SoftLimitMB == 0 || w.proc == nil {
		return true
	}

	w.calls++
	if w.cfg.CheckInterval > 1 && w.calls%w.cfg.CheckInterval != 0 {
		return w.lastOK
	}

	rssMB, err := w.sampleMB(ctx)
	if err != nil {
		w.logger.Warn("watchdog: failed to sample RSS", "error", err)
		return w.lastOK
	}

	softLimit := float64(w.cfg.SoftLimitMB)
	if float64(rssMB) >= softLimit*0.8 {
		w.ForceGarbageCollection()
		if rssMB, err = w.sampleMB(ctx); err != nil {
			w.logger.Warn("watchdog: failed to re-sample RSS after GC", "error", err)
			return w.lastOK
		}
	}

	w.lastOK = rssMB < w.cfg.SoftLimitMB
	if !w.lastOK {
		w.logger.Warn("watchdog: soft limit exceeded", "rss_mb", rssMB, "soft_limit_mb", w.cfg.SoftLimitMB)
	}
	return w.lastOK
}

func (w *Watchdog) sampleMB(ctx context.Context) (uint64, error) {
	info, err := w.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS / (1024 * 1024), nil
}

// CollectGarbage is advisory: it GCs after every GCInterval calls.
func (w *Watchdog) CollectGarbage() {
	w.gcCalls++
	if w.cfg.GCInterval > 0 && w.gcCalls%w.cfg.GCInterval == 0 {
		runtime.GC()
	}
}

// ForceGarbageCollection runs an immediate GC cycle unconditionally.
func (w *Watchdog) ForceGarbageCollection() {
	runtime.GC()
}
