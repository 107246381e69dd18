package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	httpadapter "github.com/marmos91/dittofiles/pkg/adapter/http"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/gc"
	"github.com/marmos91/dittofiles/pkg/service"
)

// EnvPrefix prefixes every environment override, e.g.
// DITTOFILES_LOGGING_LEVEL=DEBUG.
const EnvPrefix = "DITTOFILES"

// Config represents the complete DittoFiles configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOFILES_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// Each store section carries a Type plus one option map per implementation
// (e.g. content.filesystem, content.s3). Only the map matching Type is
// decoded, by the store factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Upload tunes the upload pipeline
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Pagination clamps listing page sizes
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination"`

	// Content selects and configures the object store
	Content ContentConfig `mapstructure:"content" yaml:"content"`

	// Metadata selects and configures the metadata store
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// GC configures the background garbage collector
	GC GCConfig `mapstructure:"gc" yaml:"gc"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures metrics collection and its HTTP server.
type MetricsConfig struct {
	// Enabled turns on collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the metrics server port
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// UploadConfig tunes the upload pipeline.
type UploadConfig struct {
	// ChunkSize is the sniffed prefix and minimum multipart part size, in bytes
	ChunkSize int64 `mapstructure:"chunk_size" yaml:"chunk_size" validate:"gt=0"`

	// MaxSize caps one upload, in bytes. A negative value disables the cap.
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size" validate:"ne=0"`
}

// PaginationConfig clamps listing page sizes.
type PaginationConfig struct {
	DefaultSize int `mapstructure:"default_size" yaml:"default_size" validate:"gt=0"`
	MaxSize     int `mapstructure:"max_size" yaml:"max_size" validate:"gt=0,gtefield=DefaultSize"`
}

// ContentConfig specifies object store configuration.
type ContentConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem options, used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Memory options, used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// S3 options, used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// MetadataConfig specifies metadata store configuration.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: memory, badger, postgres
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger postgres"`

	// Memory options, used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger options, used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// Postgres options, used when Type = "postgres"
	Postgres map[string]any `mapstructure:"postgres" yaml:"postgres"`
}

// GCConfig configures the background garbage collector.
type GCConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	PendingTTL time.Duration `mapstructure:"pending_ttl" yaml:"pending_ttl" validate:"gt=0"`
	BatchSize  int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`
	DryRun     bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP uses the adapter's own configuration type directly.
	HTTP httpadapter.Config `mapstructure:"http" yaml:"http"`
}

// ServiceConfig converts the upload and pagination sections into the
// service configuration.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		ChunkSize:     c.Upload.ChunkSize,
		MaxUploadSize: c.Upload.MaxSize,
		Pagination: files.Normalizer{
			DefaultPageSize: c.Pagination.DefaultSize,
			MaxPageSize:     c.Pagination.MaxSize,
		},
	}
}

// CollectorConfig converts the gc section into the collector configuration.
func (c *Config) CollectorConfig() gc.Config {
	return gc.Config{
		Enabled:    c.GC.Enabled,
		Interval:   c.GC.Interval,
		PendingTTL: c.GC.PendingTTL,
		BatchSize:  c.GC.BatchSize,
		DryRun:     c.GC.DryRun,
	}
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOFILES_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// scalar key is bound explicitly to make overrides work without a file.
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	// Booleans cannot be defaulted after unmarshalling.
	v.SetDefault("gc.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// bindEnvKeys walks the mapstructure tags of t and binds every scalar key.
// Option maps are skipped: their keys are backend specific.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		switch {
		case field.Type.Kind() == reflect.Struct && field.Type != durationType:
			bindEnvKeys(v, field.Type, key)
		case field.Type.Kind() == reflect.Map:
		default:
			_ = v.BindEnv(key)
		}
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// Missing config file is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittofiles")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittofiles")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
