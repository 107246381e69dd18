package gc

import "time"

// Metrics provides observability for garbage collection runs.
//
// This is optional - if not provided, a no-op implementation is used. The
// Prometheus implementation lives in pkg/metrics.
type Metrics interface {
	// ObserveRun records a completed run with its duration and outcome.
	ObserveRun(duration time.Duration, err error)

	// RecordReaped records items removed by a run.
	//
	// Parameters:
	//   - kind: "pending" or "orphan"
	//   - count: number of items removed
	RecordReaped(kind string, count int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(duration time.Duration, err error) {}
func (noopMetrics) RecordReaped(kind string, count int)          {}
