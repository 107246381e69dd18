package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoFiles Configuration File
#
# Every value below is a default. Any key can be overridden with an
# environment variable: DITTOFILES_ followed by the key path in upper case
# with dots replaced by underscores, e.g. DITTOFILES_LOGGING_LEVEL=DEBUG.

`

// sectionComments documents the top-level sections of a generated file.
var sectionComments = map[string]string{
	"logging":    "# Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"server":     "# Server-wide settings and the Prometheus metrics endpoint",
	"upload":     "# Upload pipeline: chunk_size is the sniffed prefix and minimum multipart part size;\n# max_size caps one upload in bytes (negative disables the cap)",
	"pagination": "# Listing page sizes",
	"content":    "# Object store: type is filesystem, memory or s3.\n# s3 options: region, bucket, key_prefix, endpoint, access_key_id,\n# secret_access_key, force_path_style, part_size, max_retries",
	"metadata":   "# Metadata store: type is memory, badger or postgres.\n# badger options: db_path, in_memory, block_cache_size_mb, index_cache_size_mb\n# postgres options: dsn, max_conns, connect_timeout, migrate",
	"gc":         "# Garbage collector: reaps abandoned PENDING uploads and orphaned objects.\n# pending_ttl must outlast the slowest upload: an upload still streaming when\n# its reservation is reaped fails and frees its filename. With a positive\n# upload.max_size it must cover max_size at 1 MiB/s; with uploads uncapped,\n# size it by hand.",
	"adapters":   "# Protocol adapters",
}

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path written. Fails if the file exists and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may later hold credentials.
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above each top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}
