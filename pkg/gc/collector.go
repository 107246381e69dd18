// Package gc reaps what failed uploads and deletes leave behind.
//
// Compensation runs synchronously inside an upload, so in the normal case
// nothing is left over. Two kinds of residue survive a crash or a failed
// best-effort cleanup:
//   - stale PENDING records: reservations whose upload never finished
//   - orphan objects: blobs whose record no longer exists
//
// The collector removes both. It never touches PENDING records younger than
// PendingTTL. An older upload may still be streaming and may finalize while
// a run is in progress, so records are removed with a status-guarded delete
// and the object only goes once the record is gone. An upload whose
// reservation was reaped fails to finalize and compensates on its own.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// Default settings.
const (
	DefaultInterval   = time.Hour
	DefaultPendingTTL = 24 * time.Hour
	DefaultBatchSize  = 1000

	// MinUploadRate is the slowest upload, in bytes per second, a PendingTTL
	// must accommodate.
	MinUploadRate = 1 << 20
)

// MinPendingTTL returns the shortest PendingTTL that lets an upload of
// maxSize bytes finish at MinUploadRate before its reservation is reaped.
// A non-positive maxSize means uploads are unbounded and returns 0.
func MinPendingTTL(maxSize int64) time.Duration {
	if maxSize <= 0 {
		return 0
	}
	seconds := maxSize / MinUploadRate
	if maxSize%MinUploadRate != 0 {
		seconds++
	}
	return time.Duration(seconds) * time.Second
}

// Collector performs periodic garbage collection.
//
// Thread Safety: Safe for concurrent use. Runs are serialized.
type Collector struct {
	meta    metadata.Store
	objects content.ObjectStore
	config  Config
	metrics Metrics

	// now is the clock; tests replace it.
	now func() time.Time

	runMu     sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether the background worker runs. RunNow works
	// either way.
	Enabled bool

	// Interval is how often to run garbage collection (default: 1h)
	Interval time.Duration

	// PendingTTL is the age after which a PENDING record is considered
	// abandoned (default: 24h). It must exceed the longest expected upload;
	// see MinPendingTTL.
	PendingTTL time.Duration

	// BatchSize bounds stale records fetched and objects deleted per call
	// (default: 1000). S3 supports up to 1000 objects per DeleteObjects call.
	BatchSize int

	// DryRun mode logs what would be deleted without actually deleting.
	DryRun bool
}

// NewCollector creates a new garbage collector. The collector is not
// started; call Start to begin background collection. metrics may be nil.
//
// Orphan sweeping requires the object store to implement
// content.GarbageCollectableStore; without it only stale PENDING records are
// reaped.
func NewCollector(meta metadata.Store, objects content.ObjectStore, config Config, metrics Metrics) *Collector {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.PendingTTL <= 0 {
		config.PendingTTL = DefaultPendingTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Collector{
		meta:    meta,
		objects: objects,
		config:  config,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (c *Collector) Config() Config {
	return c.config
}

// Start begins background garbage collection. Safe to call multiple times
// (subsequent calls are no-ops).
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		logger.Info("Starting garbage collector: interval=%s pending_ttl=%s batch_size=%d dry_run=%v",
			c.config.Interval, c.config.PendingTTL, c.config.BatchSize, c.config.DryRun)
		c.started.Store(true)
		go c.worker()
	})
}

// Stop stops the garbage collector and waits for an in-progress run to
// finish, or for ctx to expire. Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
	})
	if !c.started.Load() {
		return nil
	}

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped successfully")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate garbage collection run and blocks until it
// completes or ctx is cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

// worker is the background goroutine that runs periodic garbage collection.
func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			runCtx, runCancel := context.WithTimeout(ctx, 10*time.Minute)
			stats, err := c.collect(runCtx)
			runCancel()

			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Garbage collection failed: %v", err)
			} else if err == nil {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			logger.Info("Garbage collector worker stopping...")
			return
		}
	}
}

// collect performs a single garbage collection run:
//  1. Reap PENDING records older than PendingTTL, record first
//  2. List all objects and delete those whose record is gone
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: c.now()}
	err := c.collectStalePending(ctx, stats)
	if err == nil {
		err = c.collectOrphans(ctx, stats)
	}
	stats.EndTime = c.now()

	c.metrics.ObserveRun(stats.Duration(), err)
	c.metrics.RecordReaped("pending", int(stats.PendingReaped))
	c.metrics.RecordReaped("orphan", int(stats.OrphansDeleted))
	return stats, err
}

// collectStalePending removes abandoned reservations in batches. Each batch
// is re-fetched after the previous one is removed; a batch that removes
// nothing ends the phase so persistent failures cannot spin.
func (c *Collector) collectStalePending(ctx context.Context, stats *Stats) error {
	cutoff := c.now().Add(-c.config.PendingTTL)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stale, err := c.meta.ListStalePending(ctx, cutoff, c.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to list stale pending records: %w", err)
		}
		stats.PendingFound += uint64(len(stale))

		if c.config.DryRun {
			for _, rec := range stale {
				logger.Info("GC: DRY RUN - would reap pending record id=%s owner=%s filename=%q created=%s",
					rec.ID, rec.OwnerID, rec.Filename, rec.CreatedAt.Format(time.RFC3339))
			}
			return nil
		}

		progressed := 0
		for _, rec := range stale {
			removed, err := c.reapPending(ctx, rec)
			if err != nil {
				logger.Warn("GC: failed to reap pending record %s: %v", rec.ID, err)
				stats.FailedCount++
				continue
			}
			progressed++
			if removed {
				stats.PendingReaped++
			} else {
				stats.PendingSkipped++
			}
		}

		if len(stale) < c.config.BatchSize || progressed == 0 {
			return nil
		}
	}
}

// reapPending deletes a stale record if it is still PENDING, then its
// object. It reports false when the record was finalized or removed since it
// was listed; the object is then left alone.
func (c *Collector) reapPending(ctx context.Context, rec files.FileRecord) (bool, error) {
	removed, err := c.meta.DeletePending(ctx, rec.ID, rec.OwnerID)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	if !removed {
		logger.Debug("GC: pending record id=%s changed state before reaping, skipped", rec.ID)
		return false, nil
	}

	// A failure here leaves an orphan for the sweep that follows.
	if err := c.objects.Delete(ctx, rec.ObjectKey()); err != nil {
		logger.Warn("GC: failed to delete object %s of reaped record: %v", rec.ObjectKey(), err)
	}
	logger.Debug("GC: reaped pending record id=%s owner=%s filename=%q", rec.ID, rec.OwnerID, rec.Filename)
	return true, nil
}

// collectOrphans deletes objects with no matching record. Keys that do not
// parse as record keys belong to something else and are left alone.
func (c *Collector) collectOrphans(ctx context.Context, stats *Stats) error {
	gcStore, ok := c.objects.(content.GarbageCollectableStore)
	if !ok {
		logger.Debug("GC: object store cannot enumerate objects, skipping orphan sweep")
		return nil
	}

	keys, err := gcStore.ListAllObjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list objects: %w", err)
	}
	stats.ObjectCount = uint64(len(keys))

	var orphaned []string
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		orphan, err := c.isOrphan(ctx, key)
		if err != nil {
			return err
		}
		if orphan {
			orphaned = append(orphaned, key)
		}
	}
	stats.OrphansFound = uint64(len(orphaned))

	if len(orphaned) == 0 {
		return nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would delete %d orphan objects:", len(orphaned))
		for i, key := range orphaned {
			if i == 10 {
				logger.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("  - %s", key)
		}
		return nil
	}

	for i := 0; i < len(orphaned); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := orphaned[i:min(i+c.config.BatchSize, len(orphaned))]
		failures, err := gcStore.DeleteBatch(ctx, batch)
		if err != nil {
			logger.Warn("GC: batch delete failed: %v", err)
			stats.FailedCount += uint64(len(batch))
			continue
		}

		stats.OrphansDeleted += uint64(len(batch) - len(failures))
		stats.FailedCount += uint64(len(failures))
		for key, ferr := range failures {
			logger.Debug("GC: failed to delete %s: %v", key, ferr)
		}
	}
	return nil
}

// isOrphan reports whether key belongs to a record that no longer exists.
func (c *Collector) isOrphan(ctx context.Context, key string) (bool, error) {
	owner, id, ok := files.ParseObjectKey(key)
	if !ok {
		return false, nil
	}

	rec, err := c.meta.FindByID(ctx, id)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up record %s: %w", id, err)
	}
	return rec.OwnerID != owner, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime      time.Time // When collection started
	EndTime        time.Time // When collection ended
	PendingFound   uint64    // Stale PENDING records found
	PendingReaped  uint64    // Stale PENDING records removed with their objects
	PendingSkipped uint64    // Stale records finalized or removed before reaping
	ObjectCount    uint64    // Objects listed in the object store
	OrphansFound   uint64    // Objects with no matching record
	OrphansDeleted uint64    // Orphan objects successfully deleted
	FailedCount    uint64    // Records or objects that failed to delete
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("pending=%d reaped=%d skipped=%d objects=%d orphans=%d deleted=%d failed=%d duration=%s",
		s.PendingFound, s.PendingReaped, s.PendingSkipped, s.ObjectCount, s.OrphansFound,
		s.OrphansDeleted, s.FailedCount, s.Duration())
}
