package coordinator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counter/histogram pair every coordinator
// operation reports into, keyed by operation and per-store outcome.
type Metrics struct {
	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	return &Metrics{
		OpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ultramemory",
			Subsystem: "coordinator",
			Name:      "ops_total",
			Help:      "Total Store Coordinator operations by op and outcome status",
		}, []string{"op", "status"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ultramemory",
			Subsystem: "coordinator",
			Name:      "op_duration_seconds",
			Help:      "Store Coordinator operation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// sharedMetrics returns the package-wide Prometheus instruments, registering
// them on first use — every Coordinator instance in a process shares one
// registration.
func sharedMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}
