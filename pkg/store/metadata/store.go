// Package metadata defines the metadata store port used by the upload
// engine.
//
// The store is the source of truth for the two uniqueness invariants:
//   - at most one record per (owner, filename)
//   - at most one record per (owner, content hash) once the hash is set
//
// Both are enforced atomically by the store itself (compound unique indexes,
// transactional index keys, or a single lock), never by read-then-write in
// the caller. The service layer's pre-checks are optimizations only.
//
// Records cross the interface by value. Operations are explicit and narrow
// (InsertPending, Finalize, Rename, DeleteByIDAndOwner, DeletePending) rather than a generic
// save, so that every mutation that can violate an invariant is a single
// atomic store operation.
package metadata

import (
	"context"
	"time"

	"github.com/marmos91/dittofiles/pkg/files"
)

// Finalization carries the values set when a PENDING record becomes READY.
type Finalization struct {
	Size        int64
	ContentType string
	ContentHash string
	At          time.Time
}

// Store is the metadata backend consumed by the service layer.
//
// Every Find* method returns ErrNotFound when no record matches. Returned
// records are copies; mutating them has no effect on the store.
//
// Thread Safety: implementations must be safe for concurrent use.
type Store interface {
	// InsertPending persists a new PENDING record and returns it with its
	// assigned ID. The caller provides every other field, including LinkID
	// and timestamps.
	//
	// Returns ErrFilenameTaken if the owner already has a record (in any
	// state) with the same filename.
	InsertPending(ctx context.Context, record files.FileRecord) (*files.FileRecord, error)

	// Finalize atomically moves a PENDING record to READY, setting size,
	// content type, content hash and UpdatedAt.
	//
	// Returns ErrContentTaken if the owner already has a READY record with
	// the same hash, and ErrNotFound if the record is absent or not PENDING.
	Finalize(ctx context.Context, id string, fin Finalization) (*files.FileRecord, error)

	// FindByID returns the record with the given id in any state.
	FindByID(ctx context.Context, id string) (*files.FileRecord, error)

	// FindByOwnerAndFilename returns the owner's record with this filename,
	// in any state.
	FindByOwnerAndFilename(ctx context.Context, ownerID, filename string) (*files.FileRecord, error)

	// FindByOwnerAndContentHash returns the owner's READY record with this
	// content hash.
	FindByOwnerAndContentHash(ctx context.Context, ownerID, hash string) (*files.FileRecord, error)

	// FindByLinkID returns the READY record with this link id. PENDING
	// records are never returned.
	FindByLinkID(ctx context.Context, linkID string) (*files.FileRecord, error)

	// Rename atomically changes the filename and UpdatedAt of a record.
	//
	// Returns ErrFilenameTaken if another record of the same owner already
	// uses newFilename, and ErrNotFound if the record is absent.
	Rename(ctx context.Context, id, newFilename string, at time.Time) (*files.FileRecord, error)

	// DeleteByIDAndOwner removes the record only if it belongs to ownerID.
	// It reports whether a record was removed.
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)

	// DeletePending removes the record only if it belongs to ownerID and is
	// still PENDING. It reports whether a record was removed; a record that
	// was finalized in the meantime is left untouched.
	DeletePending(ctx context.Context, id, ownerID string) (bool, error)

	// CountByContentHash counts READY records with this hash across all
	// owners.
	CountByContentHash(ctx context.Context, hash string) (int, error)

	// List returns one page of READY records matching the query.
	List(ctx context.Context, query files.ListQuery) (files.Page, error)

	// ListStalePending returns up to limit PENDING records created before
	// olderThan, oldest first. Used to reap reservations abandoned by a
	// crashed process.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]files.FileRecord, error)

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
