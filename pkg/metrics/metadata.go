package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// MetadataMetrics provides observability for metadata store operations.
//
// This interface is optional - stores are only wrapped with
// InstrumentMetadataStore when metrics are enabled.
type MetadataMetrics interface {
	// RecordOperation records a completed store operation with its name,
	// duration, and outcome.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "insert_pending", "finalize", "list")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordConstraintViolation records a uniqueness violation rejected by the
	// store.
	//
	// Parameters:
	//   - constraint: "filename", "content" or "link"
	RecordConstraintViolation(constraint string)
}

// metadataMetrics is the Prometheus implementation of MetadataMetrics.
type metadataMetrics struct {
	storeType         string
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	violationsTotal   *prometheus.CounterVec
}

// NewMetadataMetrics creates a new Prometheus-backed MetadataMetrics instance.
//
// Parameters:
//   - storeType: Type of metadata store (e.g., "memory", "badger", "postgres")
//     Used as a label to distinguish metrics from different store implementations.
//
// Returns a no-op implementation if metrics are not enabled.
func NewMetadataMetrics(storeType string) MetadataMetrics {
	if !IsEnabled() {
		return noopMetadataMetrics{}
	}
	return newMetadataMetrics(GetRegistry(), storeType)
}

func newMetadataMetrics(reg prometheus.Registerer, storeType string) *metadataMetrics {
	return &metadataMetrics{
		storeType: storeType,
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_metadata_operations_total",
				Help: "Total number of metadata operations by store type, operation, and status",
			},
			[]string{"store_type", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittofiles_metadata_operation_duration_seconds",
				Help: "Duration of metadata operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.025,  // 25ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.25,   // 250ms
					0.5,    // 500ms
					1.0,    // 1s
				},
			},
			[]string{"store_type", "operation"},
		),
		violationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofiles_metadata_constraint_violations_total",
				Help: "Total number of uniqueness violations rejected by the metadata store",
			},
			[]string{"store_type", "constraint"},
		),
	}
}

func (m *metadataMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(m.storeType, operation, statusOf(err)).Inc()
	m.operationDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
}

func (m *metadataMetrics) RecordConstraintViolation(constraint string) {
	m.violationsTotal.WithLabelValues(m.storeType, constraint).Inc()
}

// noopMetadataMetrics is a no-op implementation of MetadataMetrics.
type noopMetadataMetrics struct{}

func (noopMetadataMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopMetadataMetrics) RecordConstraintViolation(constraint string)                          {}

// ============================================================================
// Instrumented store
// ============================================================================

// instrumentedStore decorates a metadata.Store with operation metrics.
// Lookups that find nothing are not counted as errors.
type instrumentedStore struct {
	metadata.Store
	metrics MetadataMetrics
}

// InstrumentMetadataStore wraps store so every operation is reported to m.
// A nil m returns store unchanged.
func InstrumentMetadataStore(store metadata.Store, m MetadataMetrics) metadata.Store {
	if m == nil {
		return store
	}
	if _, ok := m.(noopMetadataMetrics); ok {
		return store
	}
	return &instrumentedStore{Store: store, metrics: m}
}

func (s *instrumentedStore) observe(operation string, start time.Time, err error) {
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		err = nil
	case errors.Is(err, metadata.ErrFilenameTaken):
		s.metrics.RecordConstraintViolation("filename")
	case errors.Is(err, metadata.ErrContentTaken):
		s.metrics.RecordConstraintViolation("content")
	case errors.Is(err, metadata.ErrLinkTaken):
		s.metrics.RecordConstraintViolation("link")
	}
	s.metrics.RecordOperation(operation, time.Since(start), err)
}

func (s *instrumentedStore) InsertPending(ctx context.Context, record files.FileRecord) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.InsertPending(ctx, record)
	s.observe("insert_pending", start, err)
	return rec, err
}

func (s *instrumentedStore) Finalize(ctx context.Context, id string, fin metadata.Finalization) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.Finalize(ctx, id, fin)
	s.observe("finalize", start, err)
	return rec, err
}

func (s *instrumentedStore) FindByID(ctx context.Context, id string) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.FindByID(ctx, id)
	s.observe("find_by_id", start, err)
	return rec, err
}

func (s *instrumentedStore) FindByOwnerAndFilename(ctx context.Context, ownerID, filename string) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.FindByOwnerAndFilename(ctx, ownerID, filename)
	s.observe("find_by_filename", start, err)
	return rec, err
}

func (s *instrumentedStore) FindByOwnerAndContentHash(ctx context.Context, ownerID, hash string) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.FindByOwnerAndContentHash(ctx, ownerID, hash)
	s.observe("find_by_content_hash", start, err)
	return rec, err
}

func (s *instrumentedStore) FindByLinkID(ctx context.Context, linkID string) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.FindByLinkID(ctx, linkID)
	s.observe("find_by_link", start, err)
	return rec, err
}

func (s *instrumentedStore) Rename(ctx context.Context, id, newFilename string, at time.Time) (*files.FileRecord, error) {
	start := time.Now()
	rec, err := s.Store.Rename(ctx, id, newFilename, at)
	s.observe("rename", start, err)
	return rec, err
}

func (s *instrumentedStore) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	start := time.Now()
	deleted, err := s.Store.DeleteByIDAndOwner(ctx, id, ownerID)
	s.observe("delete", start, err)
	return deleted, err
}

func (s *instrumentedStore) DeletePending(ctx context.Context, id, ownerID string) (bool, error) {
	start := time.Now()
	deleted, err := s.Store.DeletePending(ctx, id, ownerID)
	s.observe("delete_pending", start, err)
	return deleted, err
}

func (s *instrumentedStore) CountByContentHash(ctx context.Context, hash string) (int, error) {
	start := time.Now()
	n, err := s.Store.CountByContentHash(ctx, hash)
	s.observe("count_by_content_hash", start, err)
	return n, err
}

func (s *instrumentedStore) List(ctx context.Context, query files.ListQuery) (files.Page, error) {
	start := time.Now()
	page, err := s.Store.List(ctx, query)
	s.observe("list", start, err)
	return page, err
}

func (s *instrumentedStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]files.FileRecord, error) {
	start := time.Now()
	recs, err := s.Store.ListStalePending(ctx, olderThan, limit)
	s.observe("list_stale_pending", start, err)
	return recs, err
}
