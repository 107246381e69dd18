package fs

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// ============================================================================
// GarbageCollectableStore Interface Implementation
// ============================================================================

// ListAllObjects walks the objects directory and returns every key.
func (s *FSObjectStore) ListAllObjects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := filepath.Join(s.basePath, objectsDir)
	var keys []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return keys, nil
}

// DeleteBatch deletes keys one by one and collects per-key failures.
func (s *FSObjectStore) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := s.Delete(ctx, key); err != nil {
			failures[key] = err
		}
	}

	return failures, nil
}
