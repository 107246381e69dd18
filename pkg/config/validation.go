package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittofiles/pkg/gc"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level and format normalization happens in ApplyDefaults, so
// Validate expects canonical values.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.HTTP.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the HTTP adapter", cfg.Server.Metrics.Port)
	}

	if cfg.Upload.MaxSize > 0 && cfg.Upload.ChunkSize > cfg.Upload.MaxSize {
		return fmt.Errorf("upload.chunk_size (%d) must not exceed upload.max_size (%d)",
			cfg.Upload.ChunkSize, cfg.Upload.MaxSize)
	}

	if minTTL := gc.MinPendingTTL(cfg.Upload.MaxSize); cfg.GC.Enabled && cfg.GC.PendingTTL < minTTL {
		return fmt.Errorf("gc.pending_ttl (%s) is shorter than streaming upload.max_size (%d bytes) at 1 MiB/s takes (%s)",
			cfg.GC.PendingTTL, cfg.Upload.MaxSize, minTTL)
	}

	if cfg.Adapters.HTTP.RateLimit.Burst > 0 && !cfg.Adapters.HTTP.RateLimit.Enabled() {
		return fmt.Errorf("adapters.http.rate_limit: burst set without requests_per_second")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
