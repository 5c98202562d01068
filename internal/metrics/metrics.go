// Package metrics exposes the small set of prometheus/client_golang
// collectors rexecd reports, grounded on katzenpost's go.mod dependency on
// prometheus/client_golang (the katzenpost server exports mix-net metrics
// the same way: a handful of package-level collectors registered once and
// updated from the hot paths that matter, not a metric-per-field
// everything approach).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink bundles the collectors every component that cares about metrics
// updates. Components accept a *Sink and no-op on every method when it is
// nil, the way katzenpost's client2 accepts a nil OnConnFn.
type Sink struct {
	FramesRead       prometheus.Counter
	FramesWritten    prometheus.Counter
	ActiveMailboxes  prometheus.Gauge
	ActiveProcesses  prometheus.Gauge
	DispatchDuration prometheus.Histogram
}

var (
	once     sync.Once
	registry *prometheus.Registry
	sink     *Sink
)

// Registry returns the process-wide prometheus registry, creating and
// registering its collectors exactly once.
func Registry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		sink = &Sink{
			FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rexec",
				Name:      "frames_read_total",
				Help:      "Frames decoded off the wire transport.",
			}),
			FramesWritten: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rexec",
				Name:      "frames_written_total",
				Help:      "Frames encoded onto the wire transport.",
			}),
			ActiveMailboxes: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rexec",
				Name:      "active_mailboxes",
				Help:      "Mailboxes currently registered in the post office.",
			}),
			ActiveProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rexec",
				Name:      "active_processes",
				Help:      "Remote processes currently tracked by the process registry.",
			}),
			DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "rexec",
				Name:      "dispatch_duration_seconds",
				Help:      "Time to execute one dispatched operation's handler.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		registry.MustRegister(
			sink.FramesRead,
			sink.FramesWritten,
			sink.ActiveMailboxes,
			sink.ActiveProcesses,
			sink.DispatchDuration,
		)
	})
	return registry
}

// Default returns the Sink registered against Registry(), creating it on
// first use.
func Default() *Sink {
	Registry()
	return sink
}

// ObserveDispatch records the duration of one dispatched operation, in
// seconds. No-op on a nil Sink.
func (s *Sink) ObserveDispatch(seconds float64) {
	if s == nil {
		return
	}
	s.DispatchDuration.Observe(seconds)
}

// IncFramesRead increments the frames-read counter. No-op on a nil Sink.
func (s *Sink) IncFramesRead() {
	if s == nil {
		return
	}
	s.FramesRead.Inc()
}

// IncFramesWritten increments the frames-written counter. No-op on a nil
// Sink.
func (s *Sink) IncFramesWritten() {
	if s == nil {
		return
	}
	s.FramesWritten.Inc()
}

// SetActiveMailboxes records the current mailbox count. No-op on a nil Sink.
func (s *Sink) SetActiveMailboxes(n int) {
	if s == nil {
		return
	}
	s.ActiveMailboxes.Set(float64(n))
}

// SetActiveProcesses records the current process count. No-op on a nil
// Sink.
func (s *Sink) SetActiveProcesses(n int) {
	if s == nil {
		return
	}
	s.ActiveProcesses.Set(float64(n))
}
