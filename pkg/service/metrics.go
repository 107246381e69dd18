package service

import "time"

// Upload outcomes reported to Metrics.
const (
	OutcomeSuccess          = "success"
	OutcomeValidation       = "validation"
	OutcomeFilenameConflict = "filename_conflict"
	OutcomeContentConflict  = "content_conflict"
	OutcomeTooLarge         = "too_large"
	OutcomeTransient        = "transient"
)

// Metrics provides observability for service operations.
//
// This is optional - if not provided, metrics collection is skipped. The
// Prometheus implementation lives in pkg/metrics.
type Metrics interface {
	// ObserveUpload records a finished upload with its outcome, the bytes
	// streamed and the total duration.
	ObserveUpload(outcome string, bytes int64, duration time.Duration)

	// ObserveOperation records a non-upload operation (rename, delete,
	// resolve_link, list).
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordCompensation records one compensation step (abort_multipart,
	// delete_object, delete_record) and whether it failed.
	RecordCompensation(step string, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveUpload(outcome string, bytes int64, duration time.Duration)    {}
func (noopMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordCompensation(step string, err error)                            {}
