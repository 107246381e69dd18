// Package metrics provides Prometheus metrics collection for DittoFiles
// components.
//
// All metrics are optional - if not initialized, components use no-op
// implementations. Each component package defines the small interface it
// reports through (service.Metrics, s3.S3Metrics, gc.Metrics, ...); this
// package supplies the Prometheus implementations.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	svcMetrics := metrics.NewServiceMetrics()
//	s3Metrics := metrics.NewS3Metrics()
//
//	// Or use nil for no-op behavior
//	svc := service.New(meta, objects, cfg, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all DittoFiles metrics.
	// Protected by registryOnce for write-once, read-many pattern.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry and registers the
// Go runtime and process collectors on it.
//
// This must be called before creating any metrics instances. It's safe to
// call multiple times - subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global Prometheus registry, or nil if
// InitRegistry() has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Duration buckets shared by request and operation histograms, in seconds.
var latencyBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
	30.0,  // 30s
}

// Size buckets for upload and transfer histograms, in bytes.
var sizeBuckets = []float64{
	1024,       // 1KB
	65536,      // 64KB
	1048576,    // 1MB
	5242880,    // 5MB
	10485760,   // 10MB
	104857600,  // 100MB
	524288000,  // 500MB
	1073741824, // 1GB
	5368709120, // 5GB
}

// statusOf maps an error to the status label value.
func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
