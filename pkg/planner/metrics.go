package planner

// metrics.go mirrors pkg/graph/metrics.go's sink pattern: a no-op default
// and a Prometheus-backed implementation activated only when the caller
// opts in (spec §2 "planner (variance gauge)").
//
// © 2025 hotregion authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	setVariance(v float64)
}

type noopMetrics struct{}

func (noopMetrics) setVariance(float64) {}

type promMetrics struct {
	variance prometheus.Gauge
}

// NewPromMetrics registers the planner's load-variance gauge, set at every
// variance check inside Plan, so after a call it holds the variance of the
// final assignment. reg must be non-nil.
func NewPromMetrics(reg *prometheus.Registry) metricsSink {
	pm := &promMetrics{
		variance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotregion",
			Subsystem: "planner",
			Name:      "load_variance",
			Help:      "Population variance of normalized per-store load after the most recent Plan call.",
		}),
	}
	reg.MustRegister(pm.variance)
	return pm
}

func (m *promMetrics) setVariance(v float64) { m.variance.Set(v) }
