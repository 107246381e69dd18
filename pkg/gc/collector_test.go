package gc

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/content/memory"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
	metamemory "github.com/marmos91/dittofiles/pkg/store/metadata/memory"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	meta    metadata.Store
	objects *memory.MemoryObjectStore
}

func newFixture() *fixture {
	return &fixture{
		meta:    metamemory.NewMemoryMetadataStore(),
		objects: memory.NewMemoryObjectStore(),
	}
}

func (f *fixture) collector(config Config, metrics Metrics) *Collector {
	c := NewCollector(f.meta, f.objects, config, metrics)
	c.now = func() time.Time { return now }
	return c
}

func (f *fixture) pending(t *testing.T, owner, filename string, age time.Duration) *files.FileRecord {
	t.Helper()
	linkID, err := files.NewLinkID()
	require.NoError(t, err)
	created := now.Add(-age)
	rec, err := f.meta.InsertPending(context.Background(), files.FileRecord{
		OwnerID:    owner,
		Filename:   filename,
		Visibility: files.VisibilityPrivate,
		LinkID:     linkID,
		CreatedAt:  created,
		UpdatedAt:  created,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) ready(t *testing.T, owner, filename string, age time.Duration) *files.FileRecord {
	t.Helper()
	rec := f.pending(t, owner, filename, age)
	f.put(t, rec.ObjectKey())
	ready, err := f.meta.Finalize(context.Background(), rec.ID, metadata.Finalization{
		Size:        4,
		ContentType: "text/plain",
		ContentHash: filename + "-hash",
		At:          now.Add(-age),
	})
	require.NoError(t, err)
	return ready
}

func (f *fixture) put(t *testing.T, key string) {
	t.Helper()
	_, err := f.objects.Put(context.Background(), key, bytes.NewReader([]byte("data")), 4, "text/plain")
	require.NoError(t, err)
}

func (f *fixture) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.objects.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestCollector_ReapsStalePending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stale := f.pending(t, "u1", "stale.txt", 2*time.Hour)
	f.put(t, stale.ObjectKey())
	staleNoObject := f.pending(t, "u1", "crashed-early.txt", 3*time.Hour)
	fresh := f.pending(t, "u1", "streaming.txt", time.Minute)
	f.put(t, fresh.ObjectKey())
	live := f.ready(t, "u1", "old-but-ready.txt", 48*time.Hour)

	stats, err := f.collector(Config{PendingTTL: time.Hour}, nil).RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.PendingFound)
	assert.Equal(t, uint64(2), stats.PendingReaped)
	assert.Zero(t, stats.FailedCount)

	for _, rec := range []*files.FileRecord{stale, staleNoObject} {
		_, err := f.meta.FindByID(ctx, rec.ID)
		assert.ErrorIs(t, err, metadata.ErrNotFound)
	}
	assert.False(t, f.exists(t, stale.ObjectKey()))

	// Young reservations and READY records are untouched.
	_, err = f.meta.FindByID(ctx, fresh.ID)
	assert.NoError(t, err)
	assert.True(t, f.exists(t, fresh.ObjectKey()))
	_, err = f.meta.FindByID(ctx, live.ID)
	assert.NoError(t, err)
	assert.True(t, f.exists(t, live.ObjectKey()))

	// The filename is free again.
	f.pending(t, "u1", "stale.txt", 0)
}

// finalizingStore finalizes every record it lists as stale, so each upload
// completes between the listing and the reap.
type finalizingStore struct {
	metadata.Store
}

func (s finalizingStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]files.FileRecord, error) {
	stale, err := s.Store.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return nil, err
	}
	for _, rec := range stale {
		if _, err := s.Store.Finalize(ctx, rec.ID, metadata.Finalization{
			Size:        4,
			ContentType: "text/plain",
			ContentHash: rec.ID + "-hash",
			At:          now,
		}); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

func TestCollector_SkipsRecordFinalizedAfterListing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	slow := f.pending(t, "u1", "slow-upload.bin", 2*time.Hour)
	f.put(t, slow.ObjectKey())

	c := NewCollector(finalizingStore{f.meta}, f.objects, Config{PendingTTL: time.Hour}, nil)
	c.now = func() time.Time { return now }

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PendingFound)
	assert.Zero(t, stats.PendingReaped)
	assert.Equal(t, uint64(1), stats.PendingSkipped)
	assert.Zero(t, stats.OrphansDeleted)
	assert.Zero(t, stats.FailedCount)

	rec, err := f.meta.FindByID(ctx, slow.ID)
	require.NoError(t, err)
	assert.Equal(t, files.StatusReady, rec.Status)
	assert.True(t, f.exists(t, slow.ObjectKey()))
}

// failingDeleteStore refuses to delete pending records.
type failingDeleteStore struct {
	metadata.Store
}

func (failingDeleteStore) DeletePending(context.Context, string, string) (bool, error) {
	return false, errors.New("metadata unavailable")
}

func TestCollector_KeepsObjectWhenRecordDeleteFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stale := f.pending(t, "u1", "stale.txt", 2*time.Hour)
	f.put(t, stale.ObjectKey())

	c := NewCollector(failingDeleteStore{f.meta}, f.objects, Config{PendingTTL: time.Hour}, nil)
	c.now = func() time.Time { return now }

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingReaped)
	assert.Equal(t, uint64(1), stats.FailedCount)

	_, err = f.meta.FindByID(ctx, stale.ID)
	assert.NoError(t, err)
	assert.True(t, f.exists(t, stale.ObjectKey()))
}

func TestCollector_ReapsInBatches(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.pending(t, "u1", "stale-"+string(rune('a'+i)), 2*time.Hour)
	}

	stats, err := f.collector(Config{PendingTTL: time.Hour, BatchSize: 2}, nil).RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.PendingReaped)

	stale, err := f.meta.ListStalePending(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestCollector_DeletesOrphanObjects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	live := f.ready(t, "u1", "live.txt", time.Hour)
	inFlight := f.pending(t, "u1", "in-flight.txt", time.Minute)
	f.put(t, inFlight.ObjectKey())

	orphan := files.ObjectKey("u1", metadata.NewRecordID())
	f.put(t, orphan)

	// A key naming a live record under the wrong owner is not that record's.
	misfiled := files.ObjectKey("u2", live.ID)
	f.put(t, misfiled)

	// Keys that were never record keys are left alone.
	f.put(t, "README")

	stats, err := f.collector(Config{}, nil).RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.ObjectCount)
	assert.Equal(t, uint64(2), stats.OrphansFound)
	assert.Equal(t, uint64(2), stats.OrphansDeleted)

	assert.False(t, f.exists(t, orphan))
	assert.False(t, f.exists(t, misfiled))
	assert.True(t, f.exists(t, live.ObjectKey()))
	assert.True(t, f.exists(t, inFlight.ObjectKey()))
	assert.True(t, f.exists(t, "README"))
}

func TestCollector_DryRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stale := f.pending(t, "u1", "stale.txt", 2*time.Hour)
	orphan := files.ObjectKey("u1", metadata.NewRecordID())
	f.put(t, orphan)

	stats, err := f.collector(Config{DryRun: true, PendingTTL: time.Hour}, nil).RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PendingFound)
	assert.Equal(t, uint64(1), stats.OrphansFound)
	assert.Zero(t, stats.PendingReaped)
	assert.Zero(t, stats.OrphansDeleted)

	_, err = f.meta.FindByID(ctx, stale.ID)
	assert.NoError(t, err)
	assert.True(t, f.exists(t, orphan))
}

func TestCollector_StoreWithoutEnumeration(t *testing.T) {
	f := newFixture()
	stale := f.pending(t, "u1", "stale.txt", 2*time.Hour)
	orphan := files.ObjectKey("u1", metadata.NewRecordID())
	f.put(t, orphan)

	// Only the base interface is visible through the wrapper.
	wrapped := struct{ content.ObjectStore }{f.objects}
	c := NewCollector(f.meta, wrapped, Config{PendingTTL: time.Hour}, nil)
	c.now = func() time.Time { return now }

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PendingReaped)
	assert.Zero(t, stats.ObjectCount)

	_, err = f.meta.FindByID(context.Background(), stale.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	assert.True(t, f.exists(t, orphan))
}

func TestCollector_Cancelled(t *testing.T) {
	f := newFixture()
	f.pending(t, "u1", "stale.txt", 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.collector(Config{}, nil).RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollector_Metrics(t *testing.T) {
	f := newFixture()
	f.pending(t, "u1", "stale.txt", 2*time.Hour)
	f.put(t, files.ObjectKey("u1", metadata.NewRecordID()))

	m := &recordingMetrics{reaped: map[string]int{}}
	_, err := f.collector(Config{PendingTTL: time.Hour}, m).RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, m.runs)
	assert.Equal(t, 1, m.reaped["pending"])
	assert.Equal(t, 1, m.reaped["orphan"])
}

func TestCollector_StartStop(t *testing.T) {
	f := newFixture()
	f.pending(t, "u1", "stale.txt", 2*time.Hour)

	m := &recordingMetrics{reaped: map[string]int{}}
	c := f.collector(Config{Enabled: true, Interval: 10 * time.Millisecond, PendingTTL: time.Hour}, m)
	c.Start()
	c.Start()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.reaped["pending"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestCollector_Disabled(t *testing.T) {
	c := newFixture().collector(Config{}, nil)
	c.Start()
	assert.NoError(t, c.Stop(context.Background()))
}

func TestCollector_Defaults(t *testing.T) {
	cfg := NewCollector(nil, nil, Config{}, nil).Config()
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultPendingTTL, cfg.PendingTTL)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
}

type recordingMetrics struct {
	mu     sync.Mutex
	runs   int
	reaped map[string]int
}

func (m *recordingMetrics) ObserveRun(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
}

func (m *recordingMetrics) RecordReaped(kind string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reaped[kind] += count
}

func TestMinPendingTTL(t *testing.T) {
	assert.Zero(t, MinPendingTTL(-1))
	assert.Zero(t, MinPendingTTL(0))
	assert.Equal(t, time.Second, MinPendingTTL(1))
	assert.Equal(t, time.Second, MinPendingTTL(MinUploadRate))
	assert.Equal(t, 5120*time.Second, MinPendingTTL(5<<30))
	assert.Less(t, MinPendingTTL(5<<30), DefaultPendingTTL)
}
