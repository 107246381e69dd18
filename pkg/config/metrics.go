package config

import (
	"github.com/marmos91/dittofiles/pkg/gc"
	"github.com/marmos91/dittofiles/pkg/metrics"
	"github.com/marmos91/dittofiles/pkg/service"
	"github.com/marmos91/dittofiles/pkg/store/content/s3"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Service records upload and lifecycle outcomes (nil if disabled)
	Service service.Metrics

	// GC records garbage collection runs (nil if disabled)
	GC gc.Metrics

	// S3 records object store calls of the s3 backend (nil if disabled)
	S3 s3.S3Metrics

	// HTTP records adapter requests (never nil, noop if disabled)
	HTTP metrics.HTTPMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// When enabled, the global Prometheus registry is initialized before any
// collector is created, so every constructor below registers against it.
// When disabled, constructors return nil or noop implementations and the
// instrumented code paths cost nothing.
//
// Metadata store metrics are created by CreateMetadataStore, which must
// therefore run after InitializeMetrics.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTP: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Server.Metrics.Port,
		}),
		Service: metrics.NewServiceMetrics(),
		GC:      metrics.NewGCMetrics(),
		S3:      metrics.NewS3Metrics(),
		HTTP:    metrics.NewHTTPMetrics(),
	}
}
