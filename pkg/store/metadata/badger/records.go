package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// ============================================================================
// Transaction Helpers
// ============================================================================

// getRecord loads the record stored under id.
func getRecord(txn *badger.Txn, id string) (*files.FileRecord, error) {
	item, err := txn.Get(keyFile(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	var rec *files.FileRecord
	err = item.Value(func(val []byte) error {
		var decodeErr error
		rec, decodeErr = decodeRecord(val)
		return decodeErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// getIndex resolves an index key to the record id it points at. The read is
// registered with the transaction, so a concurrent writer of the same key
// aborts one of the two transactions.
func getIndex(txn *badger.Txn, key []byte) (string, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// putRecord writes the record and every index entry derived from it.
func putRecord(txn *badger.Txn, rec *files.FileRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	id := []byte(rec.ID)
	entries := []struct {
		key []byte
		val []byte
	}{
		{keyFile(rec.ID), data},
		{keyName(rec.OwnerID, rec.Filename), id},
		{keyLink(rec.LinkID), id},
		{keyOwner(rec.OwnerID, rec.ID), nil},
	}

	if rec.IsReady() {
		entries = append(entries,
			struct{ key, val []byte }{keyHash(rec.OwnerID, rec.ContentHash), id},
			struct{ key, val []byte }{keyContent(rec.ContentHash, rec.ID), nil},
		)
	} else {
		entries = append(entries, struct{ key, val []byte }{keyPending(rec.ID), nil})
	}

	if rec.Visibility == files.VisibilityPublic {
		entries = append(entries, struct{ key, val []byte }{keyPublic(rec.ID), nil})
	}

	for _, e := range entries {
		if err := txn.Set(e.key, e.val); err != nil {
			return fmt.Errorf("failed to write key %q: %w", e.key, err)
		}
	}
	return nil
}

// deleteRecord removes the record and every index entry derived from it.
func deleteRecord(txn *badger.Txn, rec *files.FileRecord) error {
	keys := [][]byte{
		keyFile(rec.ID),
		keyName(rec.OwnerID, rec.Filename),
		keyLink(rec.LinkID),
		keyOwner(rec.OwnerID, rec.ID),
		keyPending(rec.ID),
		keyPublic(rec.ID),
	}
	if rec.ContentHash != "" {
		keys = append(keys, keyHash(rec.OwnerID, rec.ContentHash), keyContent(rec.ContentHash, rec.ID))
	}

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete key %q: %w", key, err)
		}
	}
	return nil
}

// ============================================================================
// Mutations
// ============================================================================

// InsertPending persists a new PENDING record.
func (s *BadgerMetadataStore) InsertPending(ctx context.Context, record files.FileRecord) (*files.FileRecord, error) {
	rec, err := metadata.PreparePending(record)
	if err != nil {
		return nil, err
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, taken, err := getIndex(txn, keyName(rec.OwnerID, rec.Filename)); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("%q: %w", rec.Filename, metadata.ErrFilenameTaken)
		}

		if _, taken, err := getIndex(txn, keyLink(rec.LinkID)); err != nil {
			return err
		} else if taken {
			return metadata.ErrLinkTaken
		}

		return putRecord(txn, &rec)
	})
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// Finalize moves a PENDING record to READY.
func (s *BadgerMetadataStore) Finalize(ctx context.Context, id string, fin metadata.Finalization) (*files.FileRecord, error) {
	var result files.FileRecord

	err := s.update(ctx, func(txn *badger.Txn) error {
		current, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if current.Status != files.StatusPending {
			return fmt.Errorf("record %s is not pending: %w", id, metadata.ErrNotFound)
		}

		if _, taken, err := getIndex(txn, keyHash(current.OwnerID, fin.ContentHash)); err != nil {
			return err
		} else if taken {
			return metadata.ErrContentTaken
		}

		if err := txn.Delete(keyPending(id)); err != nil {
			return err
		}

		result = metadata.ApplyFinalization(*current, fin)
		return putRecord(txn, &result)
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Rename changes the filename of a record.
func (s *BadgerMetadataStore) Rename(ctx context.Context, id, newFilename string, at time.Time) (*files.FileRecord, error) {
	var result *files.FileRecord

	err := s.update(ctx, func(txn *badger.Txn) error {
		current, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if current.Filename == newFilename {
			result = current
			return nil
		}

		if _, taken, err := getIndex(txn, keyName(current.OwnerID, newFilename)); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("%q: %w", newFilename, metadata.ErrFilenameTaken)
		}

		if err := txn.Delete(keyName(current.OwnerID, current.Filename)); err != nil {
			return err
		}

		current.Filename = newFilename
		current.UpdatedAt = at
		result = current
		return putRecord(txn, current)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteByIDAndOwner removes the record if ownerID owns it.
func (s *BadgerMetadataStore) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	return s.deleteIf(ctx, id, ownerID, false)
}

// DeletePending removes the record if ownerID owns it and it is still
// PENDING. The status check and the delete share one transaction.
func (s *BadgerMetadataStore) DeletePending(ctx context.Context, id, ownerID string) (bool, error) {
	return s.deleteIf(ctx, id, ownerID, true)
}

func (s *BadgerMetadataStore) deleteIf(ctx context.Context, id, ownerID string, pendingOnly bool) (bool, error) {
	var deleted bool

	err := s.update(ctx, func(txn *badger.Txn) error {
		deleted = false

		current, err := getRecord(txn, id)
		if errors.Is(err, metadata.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.OwnerID != ownerID {
			return nil
		}
		if pendingOnly && current.Status != files.StatusPending {
			return nil
		}

		if err := deleteRecord(txn, current); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return deleted, nil
}

// ============================================================================
// Lookups
// ============================================================================

// FindByID returns the record with the given id.
func (s *BadgerMetadataStore) FindByID(ctx context.Context, id string) (*files.FileRecord, error) {
	var rec *files.FileRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

// findByIndex resolves an index key and loads the record it points at.
func (s *BadgerMetadataStore) findByIndex(ctx context.Context, key []byte) (*files.FileRecord, error) {
	var rec *files.FileRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, ok, err := getIndex(txn, key)
		if err != nil {
			return err
		}
		if !ok {
			return metadata.ErrNotFound
		}
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

// FindByOwnerAndFilename returns the owner's record with this filename.
func (s *BadgerMetadataStore) FindByOwnerAndFilename(ctx context.Context, ownerID, filename string) (*files.FileRecord, error) {
	return s.findByIndex(ctx, keyName(ownerID, filename))
}

// FindByOwnerAndContentHash returns the owner's READY record with this hash.
func (s *BadgerMetadataStore) FindByOwnerAndContentHash(ctx context.Context, ownerID, hash string) (*files.FileRecord, error) {
	return s.findByIndex(ctx, keyHash(ownerID, hash))
}

// FindByLinkID returns the READY record with this link id.
func (s *BadgerMetadataStore) FindByLinkID(ctx context.Context, linkID string) (*files.FileRecord, error) {
	rec, err := s.findByIndex(ctx, keyLink(linkID))
	if err != nil {
		return nil, err
	}
	if !rec.IsReady() {
		return nil, metadata.ErrNotFound
	}
	return rec, nil
}

// CountByContentHash counts READY records with this hash across owners.
func (s *BadgerMetadataStore) CountByContentHash(ctx context.Context, hash string) (int, error) {
	count := 0
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := keyContentPrefix(hash)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ============================================================================
// Listings
// ============================================================================

// collectIDs returns the id suffixes of every key under prefix.
func collectIDs(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, idFromKey(it.Item().KeyCopy(nil), prefix))
	}
	return ids
}

// loadRecords loads every record in ids, skipping ids removed concurrently.
func loadRecords(txn *badger.Txn, ids []string) ([]files.FileRecord, error) {
	records := make([]files.FileRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := getRecord(txn, id)
		if errors.Is(err, metadata.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// List returns one page of READY records matching the query. Candidates come
// from the owner or public index; filtering, ordering and paging follow
// files.ListQuery.Apply.
func (s *BadgerMetadataStore) List(ctx context.Context, query files.ListQuery) (files.Page, error) {
	var page files.Page

	err := s.view(ctx, func(txn *badger.Txn) error {
		var prefix []byte
		if query.Scope.Public {
			prefix = []byte(prefixPublic)
		} else {
			prefix = keyOwnerPrefix(query.Scope.OwnerID)
		}

		records, err := loadRecords(txn, collectIDs(txn, prefix))
		if err != nil {
			return err
		}

		page = query.Apply(records)
		return nil
	})
	if err != nil {
		return files.Page{}, err
	}

	return page, nil
}

// ListStalePending returns PENDING records created before olderThan.
func (s *BadgerMetadataStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]files.FileRecord, error) {
	var stale []files.FileRecord

	err := s.view(ctx, func(txn *badger.Txn) error {
		records, err := loadRecords(txn, collectIDs(txn, []byte(prefixPending)))
		if err != nil {
			return err
		}

		for _, rec := range records {
			if rec.Status == files.StatusPending && rec.CreatedAt.Before(olderThan) {
				stale = append(stale, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].CreatedAt.Equal(stale[j].CreatedAt) {
			return stale[i].CreatedAt.Before(stale[j].CreatedAt)
		}
		return stale[i].ID < stale[j].ID
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

var _ metadata.Store = (*BadgerMetadataStore)(nil)
