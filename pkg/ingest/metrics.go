package ingest

// metrics.go mirrors pkg/graph/metrics.go's sink pattern: a no-op default
// and a Prometheus-backed implementation activated only when the caller
// opts in (spec §2 "ingest counters").
//
// © 2025 hotregion authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incSubmitted()
	incApplied()
	incOverloaded()
}

type noopMetrics struct{}

func (noopMetrics) incSubmitted()  {}
func (noopMetrics) incApplied()   {}
func (noopMetrics) incOverloaded() {}

type promMetrics struct {
	submitted  prometheus.Counter
	applied    prometheus.Counter
	overloaded prometheus.Counter
}

// NewPromMetrics registers the ingest front door's submitted/applied/
// overloaded-rejection counters. reg must be non-nil.
func NewPromMetrics(reg *prometheus.Registry) metricsSink {
	pm := &promMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotregion",
			Subsystem: "ingest",
			Name:      "submitted_total",
			Help:      "Transactions accepted by Submit.",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotregion",
			Subsystem: "ingest",
			Name:      "applied_total",
			Help:      "Transactions applied to the graph by a worker.",
		}),
		overloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotregion",
			Subsystem: "ingest",
			Name:      "overloaded_total",
			Help:      "Submit calls rejected because their queue was full.",
		}),
	}
	reg.MustRegister(pm.submitted, pm.applied, pm.overloaded)
	return pm
}

func (m *promMetrics) incSubmitted()  { m.submitted.Inc() }
func (m *promMetrics) incApplied()   { m.applied.Inc() }
func (m *promMetrics) incOverloaded() { m.overloaded.Inc() }
