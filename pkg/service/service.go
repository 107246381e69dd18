// Package service implements the upload and consistency engine.
//
// A Service coordinates two independent systems: a metadata.Store, which
// owns every uniqueness invariant, and a content.ObjectStore, which holds
// the bytes. There is no transaction spanning both. Uploads follow a
// reserve, stream, finalize protocol, and every failure after the
// reservation is undone by compensation before the call returns:
//
//	InsertPending ──> stream + hash ──> content precheck ──> Finalize
//	      │                 │                  │                 │
//	      └─ conflict       └─ rollback        └─ rollback       └─ rollback
//
// The service itself holds no mutable state and is safe for concurrent use.
package service

import (
	"time"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// Default limits applied by New when the Config leaves them at zero.
const (
	DefaultChunkSize     int64 = 1 << 20 // 1 MiB
	DefaultMaxUploadSize int64 = 5 << 30 // 5 GiB
)

// Config tunes a Service.
type Config struct {
	// ChunkSize is the size of the sniffed prefix and the minimum multipart
	// part size. Default: 1 MiB
	ChunkSize int64

	// MaxUploadSize caps the content length of one upload. A negative
	// value disables the cap. Default: 5 GiB
	MaxUploadSize int64

	// Pagination clamps listing queries.
	Pagination files.Normalizer
}

// Service is the upload/consistency engine.
type Service struct {
	meta    metadata.Store
	objects content.ObjectStore
	config  Config
	metrics Metrics

	// now is the clock; tests replace it.
	now func() time.Time
}

// New creates a Service over the given stores. metrics may be nil.
func New(meta metadata.Store, objects content.ObjectStore, config Config, metrics Metrics) *Service {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.MaxUploadSize == 0 {
		config.MaxUploadSize = DefaultMaxUploadSize
	}
	if config.Pagination.DefaultPageSize <= 0 && config.Pagination.MaxPageSize <= 0 {
		config.Pagination = files.DefaultNormalizer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Service{
		meta:    meta,
		objects: objects,
		config:  config,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}
