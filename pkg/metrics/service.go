package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittofiles/pkg/service"
)

// serviceMetrics is the Prometheus implementation of service.Metrics.
type serviceMetrics struct {
	uploadsTotal      *prometheus.CounterVec
	uploadDuration    *prometheus.HistogramVec
	uploadBytes       prometheus.Histogram
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	compensations     *prometheus.CounterVec
}

// NewServiceMetrics creates a Prometheus-backed service.Metrics.
//
// Returns nil if metrics are not enabled, which makes the service fall back
// to its no-op implementation.
func NewServiceMetrics() service.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newServiceMetrics(GetRegistry())
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	return &serviceMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_uploads_total",
				Help: "Total number of uploads by outcome",
			},
			[]string{"outcome"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittofiles_upload_duration_seconds",
				Help:    "Duration of uploads in seconds, from reservation to finalization or rollback",
				Buckets: latencyBuckets,
			},
			[]string{"outcome"},
		),
		uploadBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittofiles_upload_bytes",
				Help:    "Size of successfully stored uploads in bytes",
				Buckets: sizeBuckets,
			},
		),
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_operations_total",
				Help: "Total number of file operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittofiles_operation_duration_seconds",
				Help:    "Duration of file operations in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"operation"},
		),
		compensations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_compensations_total",
				Help: "Total number of rollback steps run after failed uploads, by step and status",
			},
			[]string{"step", "status"},
		),
	}
}

// ObserveUpload implements service.Metrics.
func (m *serviceMetrics) ObserveUpload(outcome string, bytes int64, duration time.Duration) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	m.uploadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == service.OutcomeSuccess {
		m.uploadBytes.Observe(float64(bytes))
	}
}

// ObserveOperation implements service.Metrics.
func (m *serviceMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, statusOf(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCompensation implements service.Metrics.
func (m *serviceMetrics) RecordCompensation(step string, err error) {
	m.compensations.WithLabelValues(step, statusOf(err)).Inc()
}
