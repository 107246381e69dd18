// Package fs implements an object store on the local filesystem.
//
// Layout under the base directory:
//
//	objects/<key>   object bytes, key segments become directories
//	types/<key>     content type of the object, one line
//	tmp/            in-flight writes, renamed into objects/ when complete
//
// Writes go to a temporary file, are fsynced, then atomically renamed into
// place, so readers never observe a partial object.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

const (
	objectsDir = "objects"
	typesDir   = "types"
	tmpDir     = "tmp"

	dirPerm  = 0o750
	filePerm = 0o640
)

// FSObjectStore implements content.ObjectStore using the local filesystem.
//
// Implemented Interfaces:
//   - content.ObjectStore
//   - content.GarbageCollectableStore
//
// Thread Safety:
// Safe for concurrent use. Each Put writes its own temporary file and the
// final rename is atomic at the OS level.
type FSObjectStore struct {
	basePath string
}

// NewFSObjectStore creates the directory layout under basePath if needed.
//
// Context Cancellation:
// The context is checked before touching the filesystem.
func NewFSObjectStore(ctx context.Context, basePath string) (*FSObjectStore, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if basePath == "" {
		return nil, fmt.Errorf("filesystem object store: base path is required")
	}

	// ========================================================================
	// Step 2: Create the directory layout
	// ========================================================================

	for _, dir := range []string{objectsDir, typesDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &FSObjectStore{basePath: basePath}, nil
}

// objectPath returns the on-disk location of key. Keys are validated by the
// caller, so filepath.Join cannot escape the objects directory.
func (s *FSObjectStore) objectPath(key string) string {
	return filepath.Join(s.basePath, objectsDir, filepath.FromSlash(key))
}

func (s *FSObjectStore) typePath(key string) string {
	return filepath.Join(s.basePath, typesDir, filepath.FromSlash(key))
}

// Close is a no-op; the store holds no open descriptors between calls.
func (s *FSObjectStore) Close() error {
	return nil
}

var (
	_ content.ObjectStore             = (*FSObjectStore)(nil)
	_ content.GarbageCollectableStore = (*FSObjectStore)(nil)
)
