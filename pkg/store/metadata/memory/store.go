// Package memory implements an in-memory metadata store.
//
// A single RWMutex guards the record map and its unique indexes, so every
// mutation checks and updates the indexes atomically.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// ownerKey scopes a value to an owner in the unique indexes.
type ownerKey struct {
	owner string
	value string
}

// MemoryMetadataStore implements metadata.Store in memory.
//
// Characteristics:
//   - Volatile: data is lost on restart
//   - Thread-safe: all state is protected by one RWMutex
//   - Listing is a full scan, fine for tests and small deployments
type MemoryMetadataStore struct {
	mu sync.RWMutex

	records map[string]files.FileRecord

	// Unique indexes, all mapping to record ids.
	byName map[ownerKey]string
	byHash map[ownerKey]string // READY records only
	byLink map[string]string
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		records: make(map[string]files.FileRecord),
		byName:  make(map[ownerKey]string),
		byHash:  make(map[ownerKey]string),
		byLink:  make(map[string]string),
	}
}

// InsertPending implements metadata.Store.
func (s *MemoryMetadataStore) InsertPending(ctx context.Context, record files.FileRecord) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := metadata.PreparePending(record)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nameKey := ownerKey{rec.OwnerID, rec.Filename}
	if _, taken := s.byName[nameKey]; taken {
		return nil, fmt.Errorf("insert %s/%s: %w", rec.OwnerID, rec.Filename, metadata.ErrFilenameTaken)
	}
	if _, taken := s.byLink[rec.LinkID]; taken {
		return nil, fmt.Errorf("insert %s/%s: %w", rec.OwnerID, rec.Filename, metadata.ErrLinkTaken)
	}

	s.records[rec.ID] = rec
	s.byName[nameKey] = rec.ID
	s.byLink[rec.LinkID] = rec.ID

	out := rec.Clone()
	return &out, nil
}

// Finalize implements metadata.Store.
func (s *MemoryMetadataStore) Finalize(ctx context.Context, id string, fin metadata.Finalization) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != files.StatusPending {
		return nil, fmt.Errorf("finalize %s: %w", id, metadata.ErrNotFound)
	}

	hashKey := ownerKey{rec.OwnerID, fin.ContentHash}
	if _, taken := s.byHash[hashKey]; taken {
		return nil, fmt.Errorf("finalize %s: %w", id, metadata.ErrContentTaken)
	}

	rec = metadata.ApplyFinalization(rec, fin)
	s.records[id] = rec
	s.byHash[hashKey] = id

	out := rec.Clone()
	return &out, nil
}

// FindByID implements metadata.Store.
func (s *MemoryMetadataStore) FindByID(ctx context.Context, id string) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(id, "id "+id)
}

// FindByOwnerAndFilename implements metadata.Store.
func (s *MemoryMetadataStore) FindByOwnerAndFilename(ctx context.Context, ownerID, filename string) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(s.byName[ownerKey{ownerID, filename}], "filename "+filename)
}

// FindByOwnerAndContentHash implements metadata.Store.
func (s *MemoryMetadataStore) FindByOwnerAndContentHash(ctx context.Context, ownerID, hash string) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(s.byHash[ownerKey{ownerID, hash}], "hash "+hash)
}

// FindByLinkID implements metadata.Store.
func (s *MemoryMetadataStore) FindByLinkID(ctx context.Context, linkID string) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(s.byLink[linkID], "link")
	if err != nil {
		return nil, err
	}
	if !rec.IsReady() {
		return nil, fmt.Errorf("link: %w", metadata.ErrNotFound)
	}
	return rec, nil
}

// Rename implements metadata.Store.
func (s *MemoryMetadataStore) Rename(ctx context.Context, id, newFilename string, at time.Time) (*files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("rename %s: %w", id, metadata.ErrNotFound)
	}
	if rec.Filename == newFilename {
		out := rec.Clone()
		return &out, nil
	}

	newKey := ownerKey{rec.OwnerID, newFilename}
	if _, taken := s.byName[newKey]; taken {
		return nil, fmt.Errorf("rename %s to %s: %w", id, newFilename, metadata.ErrFilenameTaken)
	}

	delete(s.byName, ownerKey{rec.OwnerID, rec.Filename})
	s.byName[newKey] = id

	rec.Filename = newFilename
	rec.UpdatedAt = at
	s.records[id] = rec

	out := rec.Clone()
	return &out, nil
}

// DeleteByIDAndOwner implements metadata.Store.
func (s *MemoryMetadataStore) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	return s.deleteIf(ctx, id, ownerID, false)
}

// DeletePending implements metadata.Store.
func (s *MemoryMetadataStore) DeletePending(ctx context.Context, id, ownerID string) (bool, error) {
	return s.deleteIf(ctx, id, ownerID, true)
}

func (s *MemoryMetadataStore) deleteIf(ctx context.Context, id, ownerID string, pendingOnly bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return false, nil
	}
	if pendingOnly && rec.Status != files.StatusPending {
		return false, nil
	}

	delete(s.records, id)
	delete(s.byName, ownerKey{rec.OwnerID, rec.Filename})
	delete(s.byLink, rec.LinkID)
	if rec.ContentHash != "" {
		hashKey := ownerKey{rec.OwnerID, rec.ContentHash}
		if s.byHash[hashKey] == id {
			delete(s.byHash, hashKey)
		}
	}

	return true, nil
}

// CountByContentHash implements metadata.Store.
func (s *MemoryMetadataStore) CountByContentHash(ctx context.Context, hash string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.byHash {
		if key.value == hash {
			count++
		}
	}
	return count, nil
}

// List implements metadata.Store.
func (s *MemoryMetadataStore) List(ctx context.Context, query files.ListQuery) (files.Page, error) {
	if err := ctx.Err(); err != nil {
		return files.Page{}, err
	}

	s.mu.RLock()
	snapshot := make([]files.FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	return query.Apply(snapshot), nil
}

// ListStalePending implements metadata.Store.
func (s *MemoryMetadataStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]files.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var stale []files.FileRecord
	for _, rec := range s.records {
		if rec.Status == files.StatusPending && rec.CreatedAt.Before(olderThan) {
			stale = append(stale, rec.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(stale, func(a, b files.FileRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Healthcheck always succeeds.
func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryMetadataStore) Close() error {
	return nil
}

// lookup must be called with s.mu held.
func (s *MemoryMetadataStore) lookup(id, what string) (*files.FileRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", what, metadata.ErrNotFound)
	}
	out := rec.Clone()
	return &out, nil
}

var _ metadata.Store = (*MemoryMetadataStore)(nil)
