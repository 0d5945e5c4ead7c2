package graph

// metrics.go mirrors the teacher cache library's metrics.go: a tiny
// metricsSink interface with a no-op default and a Prometheus-backed
// implementation activated only when the caller opts in, so the hot path
// never pays for metric bookkeeping unless metrics are requested.
//
// © 2025 hotregion authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	observeVertexWeight(weight uint64)
	setHotRegionCount(n int)
}

type noopMetrics struct{}

func (noopMetrics) observeVertexWeight(uint64) {}
func (noopMetrics) setHotRegionCount(int)      {}

type promMetrics struct {
	vertexWeight prometheus.Histogram
	hotRegions   prometheus.Gauge
}

// NewPromMetrics registers a histogram of vertex weights observed by
// AddTransaction, useful for sizing hot_threshold, and a gauge tracking how
// many regions TopHotRegions last found at or above hot_threshold (spec §2
// "hot-region gauge"). reg must be non-nil.
func NewPromMetrics(reg *prometheus.Registry) metricsSink {
	pm := &promMetrics{
		vertexWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotregion",
			Subsystem: "graph",
			Name:      "vertex_weight",
			Help:      "Observed vertex weight after each transaction touching it.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
		hotRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotregion",
			Subsystem: "graph",
			Name:      "hot_regions",
			Help:      "Regions at or above hot_threshold as of the last TopHotRegions call.",
		}),
	}
	reg.MustRegister(pm.vertexWeight, pm.hotRegions)
	return pm
}

func (m *promMetrics) observeVertexWeight(weight uint64) {
	m.vertexWeight.Observe(float64(weight))
}

func (m *promMetrics) setHotRegionCount(n int) { m.hotRegions.Set(float64(n)) }
