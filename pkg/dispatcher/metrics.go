package dispatcher

// metrics.go mirrors pkg/graph/metrics.go's sink pattern: a no-op default
// and a Prometheus-backed implementation activated only when the caller
// opts in, so Run never pays for metric bookkeeping unless metrics are
// requested (spec §2 "ops sent/retried/dropped counters, outstanding
// gauge").
//
// © 2025 hotregion authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incSent()
	incRetried()
	incDropped()
	setOutstanding(n int64)
}

type noopMetrics struct{}

func (noopMetrics) incSent()            {}
func (noopMetrics) incRetried()         {}
func (noopMetrics) incDropped()         {}
func (noopMetrics) setOutstanding(int64) {}

type promMetrics struct {
	sent        prometheus.Counter
	retried     prometheus.Counter
	dropped     prometheus.Counter
	outstanding prometheus.Gauge
}

// NewPromMetrics registers the dispatcher's ops-sent/retried/dropped
// counters and its outstanding-plans gauge. reg must be non-nil.
func NewPromMetrics(reg *prometheus.Registry) metricsSink {
	pm := &promMetrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotregion",
			Subsystem: "dispatcher",
			Name:      "ops_sent_total",
			Help:      "PD operator submissions that succeeded.",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotregion",
			Subsystem: "dispatcher",
			Name:      "ops_retried_total",
			Help:      "OpPlans rescheduled or requeued after a failed submission.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotregion",
			Subsystem: "dispatcher",
			Name:      "ops_dropped_total",
			Help:      "OpPlans dropped at max retry or during reconciliation.",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotregion",
			Subsystem: "dispatcher",
			Name:      "outstanding_plans",
			Help:      "OpPlans still in flight for the current Run call.",
		}),
	}
	reg.MustRegister(pm.sent, pm.retried, pm.dropped, pm.outstanding)
	return pm
}

func (m *promMetrics) incSent()             { m.sent.Inc() }
func (m *promMetrics) incRetried()          { m.retried.Inc() }
func (m *promMetrics) incDropped()          { m.dropped.Inc() }
func (m *promMetrics) setOutstanding(n int64) { m.outstanding.Set(float64(n)) }
