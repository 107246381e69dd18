package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/content/memory"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
	"github.com/marmos91/dittofiles/pkg/store/metadata/badger"
	metamemory "github.com/marmos91/dittofiles/pkg/store/metadata/memory"
)

// testEnv wires a Service to inspectable stores.
type testEnv struct {
	svc     *Service
	meta    metadata.Store
	objects *memory.MemoryObjectStore
	metrics *recordingMetrics
}

// metadataBackends lists the metadata stores every service test runs on.
var metadataBackends = map[string]func(t *testing.T) metadata.Store{
	"memory": func(t *testing.T) metadata.Store {
		return metamemory.NewMemoryMetadataStore()
	},
	"badger": func(t *testing.T) metadata.Store {
		store, err := badger.NewBadgerMetadataStore(context.Background(), badger.BadgerMetadataStoreConfig{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	},
}

// forEachBackend runs fn once per metadata backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	for name, newMeta := range metadataBackends {
		t.Run(name, func(t *testing.T) {
			fn(t, newEnv(t, newMeta(t), Config{}))
		})
	}
}

func newEnv(t *testing.T, meta metadata.Store, config Config, opts ...memory.Option) *testEnv {
	t.Helper()
	objects := memory.NewMemoryObjectStore(opts...)
	m := &recordingMetrics{}
	svc := New(meta, objects, config, m)
	svc.now = newTickingClock().Now
	return &testEnv{
		svc:     svc,
		meta:    meta,
		objects: objects,
		metrics: m,
	}
}

// req builds an upload request with a known size.
func req(owner, filename, body string, tags ...string) UploadRequest {
	return UploadRequest{
		OwnerID:    owner,
		Filename:   filename,
		Visibility: files.VisibilityPrivate,
		Tags:       tags,
		Size:       int64(len(body)),
		Body:       bytes.NewReader([]byte(body)),
	}
}

// publicReq builds a PUBLIC upload request.
func publicReq(owner, filename, body string, tags ...string) UploadRequest {
	r := req(owner, filename, body, tags...)
	r.Visibility = files.VisibilityPublic
	return r
}

func mustUpload(t *testing.T, env *testEnv, r UploadRequest) *files.FileRecord {
	t.Helper()
	rec, err := env.svc.Upload(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, files.StatusReady, rec.Status)
	return rec
}

// readAll reads the object stored for rec.
func readAll(t *testing.T, objects content.ObjectStore, rec *files.FileRecord) []byte {
	t.Helper()
	obj, err := objects.Get(context.Background(), rec.ObjectKey())
	require.NoError(t, err)
	defer func() { _ = obj.Body.Close() }()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	return data
}

// tickingClock advances by one millisecond on every reading, so records
// created one after another have strictly increasing timestamps.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// ============================================================================
// Fakes
// ============================================================================

// failingReader yields data and then fails.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// blockingReader yields data once and then blocks until ctx is done.
type blockingReader struct {
	ctx  context.Context
	data []byte
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

// faultyObjectStore wraps an ObjectStore and injects failures.
type faultyObjectStore struct {
	content.ObjectStore

	// putErr fails Put after the stream has been drained.
	putErr error

	// deleteErr fails every Delete.
	deleteErr error
}

func (f *faultyObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error) {
	if f.putErr != nil {
		n, _ := io.Copy(io.Discard, r)
		return n, f.putErr
	}
	return f.ObjectStore.Put(ctx, key, r, size, contentType)
}

func (f *faultyObjectStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.ObjectStore.Delete(ctx, key)
}

// faultyMetadataStore wraps a metadata.Store and injects failures.
type faultyMetadataStore struct {
	metadata.Store

	finalizeErr error
	hashLookup  func(ctx context.Context, owner, hash string) (*files.FileRecord, error)
}

func (f *faultyMetadataStore) Finalize(ctx context.Context, id string, fin metadata.Finalization) (*files.FileRecord, error) {
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	return f.Store.Finalize(ctx, id, fin)
}

func (f *faultyMetadataStore) FindByOwnerAndContentHash(ctx context.Context, owner, hash string) (*files.FileRecord, error) {
	if f.hashLookup != nil {
		return f.hashLookup(ctx, owner, hash)
	}
	return f.Store.FindByOwnerAndContentHash(ctx, owner, hash)
}

var errInjected = errors.New("injected failure")

// recordingMetrics records everything the service reports.
type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      []string
	compensations []string
	operations    []string
}

func (m *recordingMetrics) ObserveUpload(outcome string, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation)
}

func (m *recordingMetrics) RecordCompensation(step string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations = append(m.compensations, step)
}

func (m *recordingMetrics) lastOutcome() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outcomes) == 0 {
		return ""
	}
	return m.outcomes[len(m.outcomes)-1]
}

func (m *recordingMetrics) compensationSteps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.compensations...)
}
