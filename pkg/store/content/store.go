// Package content defines the object store port used by the upload engine.
//
// An ObjectStore holds opaque blobs addressed by string keys. It knows
// nothing about owners, filenames or hashes: the service derives keys from
// file records and keeps all bookkeeping in the metadata store.
//
// The base interface is deliberately small. Backends that can do more expose
// it through optional capability interfaces, checked with a type assertion:
//
//	if mp, ok := store.(content.MultipartObjectStore); ok {
//	    // stream unknown-length content part by part
//	}
//
// Implementations:
//   - memory: map-backed, for tests and ephemeral deployments
//   - fs: one file per key under a base directory
//   - s3: any S3-compatible service via aws-sdk-go-v2
package content

import (
	"context"
	"io"
)

// UnknownSize is passed to Put when the content length is not known ahead
// of time.
const UnknownSize int64 = -1

// Object is an open handle on a stored blob. Body must be closed by the
// caller.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// ObjectStore is the blob backend consumed by the service layer.
//
// Thread Safety: implementations must be safe for concurrent use. Writes to
// different keys are independent; the service never writes the same key
// twice.
type ObjectStore interface {
	// Put streams r into key and returns the number of bytes stored.
	//
	// size is the expected length, or UnknownSize. When size is known and r
	// yields a different number of bytes, Put fails with ErrSizeMismatch and
	// leaves no object behind.
	//
	// On any error the object must not be visible under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error)

	// Get opens key for reading.
	//
	// Returns ErrObjectNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// MultipartObjectStore is implemented by backends that accept content as a
// sequence of parts, for uploads whose length is unknown up front.
//
// A session becomes visible under its key only after
// CompleteMultipartUpload succeeds. AbortMultipartUpload discards all parts
// and is safe to call on an unknown or already aborted session.
type MultipartObjectStore interface {
	ObjectStore

	// BeginMultipartUpload opens a session for key and returns its id.
	BeginMultipartUpload(ctx context.Context, key, contentType string) (string, error)

	// UploadPart stores one part. Part numbers start at 1 and must be
	// uploaded in increasing order.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) error

	// CompleteMultipartUpload assembles all uploaded parts into the object.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string) error

	// AbortMultipartUpload discards the session.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	// PartSize is the preferred part size in bytes. Every part except the
	// last must be at least this large.
	PartSize() int64
}

// GarbageCollectableStore is implemented by backends that can enumerate and
// bulk-delete their objects, so orphans left behind by failed compensation
// can be swept.
type GarbageCollectableStore interface {
	// ListAllObjects returns every key in the store. The result is a snapshot
	// and may be stale by the time it is used.
	ListAllObjects(ctx context.Context) ([]string, error)

	// DeleteBatch removes keys on a best-effort basis. The returned map
	// holds per-key failures; the error is reserved for failures of the
	// whole call.
	DeleteBatch(ctx context.Context, keys []string) (map[string]error, error)
}
