package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// Put streams r into a temporary file, fsyncs it and renames it into place.
// On any failure the temporary file is removed and nothing is published.
func (s *FSObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error) {
	// ========================================================================
	// Step 1: Validate input
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := content.ValidateKey(key); err != nil {
		return 0, err
	}

	// ========================================================================
	// Step 2: Write to a temporary file
	// ========================================================================

	tmp, err := os.CreateTemp(filepath.Join(s.basePath, tmpDir), "put-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return n, fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if size != content.UnknownSize && n != size {
		_ = tmp.Close()
		return n, fmt.Errorf("object %s: wrote %d bytes, expected %d: %w", key, n, size, content.ErrSizeMismatch)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return n, fmt.Errorf("failed to sync object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to close object %s: %w", key, err)
	}

	// ========================================================================
	// Step 3: Record the content type, then publish atomically
	// ========================================================================

	if err := writeFileAtomic(s.typePath(key), []byte(contentType)); err != nil {
		return n, fmt.Errorf("failed to store content type of %s: %w", key, err)
	}

	dst := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return n, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return n, fmt.Errorf("failed to publish object %s: %w", key, err)
	}
	published = true

	return n, nil
}

// Delete removes the object and its content type. Missing keys are ignored.
func (s *FSObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(key); err != nil {
		return err
	}

	if err := os.Remove(s.objectPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	if err := os.Remove(s.typePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete content type of %s: %w", key, err)
	}

	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// contextReader stops a copy as soon as ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
