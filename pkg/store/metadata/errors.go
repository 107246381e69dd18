package metadata

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittofiles/pkg/files"
)

// Sentinel errors returned by Store implementations. Backends wrap them with
// fmt.Errorf("...: %w", err); callers match with errors.Is.
var (
	// ErrNotFound indicates no record matched.
	ErrNotFound = errors.New("record not found")

	// ErrFilenameTaken indicates a violation of the (owner, filename)
	// uniqueness constraint.
	ErrFilenameTaken = errors.New("filename already taken for owner")

	// ErrContentTaken indicates a violation of the (owner, content hash)
	// uniqueness constraint.
	ErrContentTaken = errors.New("content already stored for owner")

	// ErrLinkTaken indicates a link id collision. With 256-bit random link
	// ids this does not happen in practice, but stores still enforce it.
	ErrLinkTaken = errors.New("link id already taken")
)

// NewRecordID returns a fresh record id.
func NewRecordID() string {
	return uuid.NewString()
}

// PreparePending validates the fields a caller must set on a record passed
// to InsertPending and returns a copy with the ID assigned, the status
// forced to PENDING and the content fields cleared. Backends call it first
// so they all accept and reject the same input.
func PreparePending(record files.FileRecord) (files.FileRecord, error) {
	if record.OwnerID == "" || record.Filename == "" || record.LinkID == "" {
		return files.FileRecord{}, errors.New("owner id, filename and link id are required")
	}

	rec := record.Clone()
	rec.ID = NewRecordID()
	rec.Status = files.StatusPending
	rec.ContentHash = ""
	rec.Size = 0
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec, nil
}

// ApplyFinalization returns a copy of a PENDING record moved to READY.
func ApplyFinalization(record files.FileRecord, fin Finalization) files.FileRecord {
	rec := record.Clone()
	rec.Status = files.StatusReady
	rec.Size = fin.Size
	rec.ContentType = fin.ContentType
	rec.ContentHash = fin.ContentHash
	rec.UpdatedAt = fin.At
	return rec
}
