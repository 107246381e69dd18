package config

import (
	"testing"
	"time"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/gc"
	"github.com/marmos91/dittofiles/pkg/service"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if cfg.Upload.ChunkSize != service.DefaultChunkSize {
		t.Errorf("Expected chunk size %d, got %d", service.DefaultChunkSize, cfg.Upload.ChunkSize)
	}
	if cfg.Upload.MaxSize != service.DefaultMaxUploadSize {
		t.Errorf("Expected max size %d, got %d", service.DefaultMaxUploadSize, cfg.Upload.MaxSize)
	}
	if cfg.Pagination.DefaultSize != files.DefaultPageSize || cfg.Pagination.MaxSize != files.MaxPageSize {
		t.Errorf("Unexpected pagination defaults: %+v", cfg.Pagination)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected content type filesystem, got %q", cfg.Content.Type)
	}
	if _, ok := cfg.Content.Filesystem["path"]; !ok {
		t.Error("Expected default filesystem path")
	}
	if cfg.Metadata.Type != "memory" {
		t.Errorf("Expected metadata type memory, got %q", cfg.Metadata.Type)
	}
	if cfg.Metadata.Postgres == nil || cfg.Content.S3 == nil {
		t.Error("Expected option maps to be initialized")
	}
	if cfg.GC.Interval != gc.DefaultInterval || cfg.GC.PendingTTL != gc.DefaultPendingTTL || cfg.GC.BatchSize != gc.DefaultBatchSize {
		t.Errorf("Unexpected gc defaults: %+v", cfg.GC)
	}
	if !cfg.Adapters.HTTP.Enabled || cfg.Adapters.HTTP.Port != 8080 {
		t.Errorf("Expected HTTP adapter enabled on 8080, got %+v", cfg.Adapters.HTTP)
	}
	if cfg.Adapters.HTTP.MaxMetadataSize != 64<<10 {
		t.Errorf("Expected max metadata size 64KiB, got %d", cfg.Adapters.HTTP.MaxMetadataSize)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "JSON", Output: "/var/log/dittofiles.log"},
		Upload:  UploadConfig{ChunkSize: 4096, MaxSize: -1},
		Content: ContentConfig{
			Type:       "filesystem",
			Filesystem: map[string]any{"path": "/data"},
		},
		GC: GCConfig{Interval: time.Minute},
	}
	cfg.Adapters.HTTP.Port = 9000

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level normalized to WARN, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format normalized to json, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/dittofiles.log" {
		t.Errorf("Expected output preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Upload.ChunkSize != 4096 || cfg.Upload.MaxSize != -1 {
		t.Errorf("Expected upload values preserved, got %+v", cfg.Upload)
	}
	if cfg.Content.Filesystem["path"] != "/data" {
		t.Errorf("Expected filesystem path preserved, got %v", cfg.Content.Filesystem["path"])
	}
	if cfg.GC.Interval != time.Minute {
		t.Errorf("Expected gc interval preserved, got %v", cfg.GC.Interval)
	}
	// An explicit port with enabled=false keeps the adapter disabled.
	if cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter to stay disabled")
	}
	if cfg.Adapters.HTTP.Port != 9000 {
		t.Errorf("Expected port preserved, got %d", cfg.Adapters.HTTP.Port)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := GetDefaultConfig()
	before := *cfg
	ApplyDefaults(cfg)

	if cfg.Logging != before.Logging || cfg.Server != before.Server || cfg.GC != before.GC {
		t.Error("Applying defaults twice changed the configuration")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if !cfg.GC.Enabled {
		t.Error("Expected gc enabled in the default config")
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter enabled in the default config")
	}
}
