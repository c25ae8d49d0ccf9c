// Package metrics exposes the scheduler's ambient observability surface
// via github.com/prometheus/client_golang/prometheus: counters and gauges
// a production cooperative scheduler carries the same way it carries
// structured logging, independent of its scheduling semantics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder bundles the scheduler's metrics. A nil *Recorder is safe to
// call methods on (every method guards on nil), so a Scheduler built
// without WithMetricsRegisterer pays nothing for this.
type Recorder struct {
	tasksSpawned   prometheus.Counter
	tasksCompleted *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	steps          prometheus.Counter
	watchdogTrips  prometheus.Counter
}

// New registers the scheduler's metrics against reg. If reg is nil, New
// returns nil, and all Recorder methods become no-ops.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		return nil
	}

	r := &Recorder{
		tasksSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vosaka_tasks_spawned_total",
			Help: "Total number of tasks spawned.",
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vosaka_tasks_completed_total",
			Help: "Total number of tasks that reached a terminal status, by status.",
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vosaka_queue_depth",
			Help: "Number of tasks currently waiting in the ready queue.",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vosaka_steps_total",
			Help: "Total number of task step executions.",
		}),
		watchdogTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vosaka_watchdog_trips_total",
			Help: "Total number of times the memory watchdog halted a run() call early.",
		}),
	}

	reg.MustRegister(r.tasksSpawned, r.tasksCompleted, r.queueDepth, r.steps, r.watchdogTrips)
	return r
}

func (r *Recorder) TaskSpawned() {
	if r == nil {
		return
	}
	r.tasksSpawned.Inc()
}

func (r *Recorder) TaskCompleted(status string) {
	if r == nil {
		return
	}
	r.tasksCompleted.WithLabelValues(status).Inc()
}

func (r *Recorder) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}

func (r *Recorder) Step() {
	if r == nil {
		return
	}
	r.steps.Inc()
}

func (r *Recorder) WatchdogTripped() {
	if r == nil {
		return
	}
	r.watchdogTrips.Inc()
}
