package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittofiles/pkg/gc"
)

// gcMetrics is the Prometheus implementation of gc.Metrics.
type gcMetrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	reapedTotal *prometheus.CounterVec
	lastRun     prometheus.Gauge
}

// NewGCMetrics creates a Prometheus-backed gc.Metrics, or nil if metrics are
// not enabled.
func NewGCMetrics() gc.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newGCMetrics(GetRegistry())
}

func newGCMetrics(reg prometheus.Registerer) *gcMetrics {
	return &gcMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_gc_runs_total",
				Help: "Total number of garbage collection runs by status",
			},
			[]string{"status"},
		),
		runDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittofiles_gc_run_duration_seconds",
				Help:    "Duration of garbage collection runs in seconds",
				Buckets: latencyBuckets,
			},
		),
		reapedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_gc_reaped_total",
				Help: "Total number of items removed by garbage collection, by kind (pending, orphan)",
			},
			[]string{"kind"},
		),
		lastRun: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittofiles_gc_last_run_timestamp_seconds",
				Help: "Unix time of the last completed garbage collection run",
			},
		),
	}
}

func (m *gcMetrics) ObserveRun(duration time.Duration, err error) {
	m.runsTotal.WithLabelValues(statusOf(err)).Inc()
	m.runDuration.Observe(duration.Seconds())
	if err == nil {
		m.lastRun.SetToCurrentTime()
	}
}

func (m *gcMetrics) RecordReaped(kind string, count int) {
	if count > 0 {
		m.reapedTotal.WithLabelValues(kind).Add(float64(count))
	}
}
