package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// Get opens the object for reading. The caller must close the body.
func (s *FSObjectStore) Get(ctx context.Context, key string) (*content.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(s.objectPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("get %s: %w", key, content.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	contentType := ""
	if data, err := os.ReadFile(s.typePath(key)); err == nil {
		contentType = strings.TrimSpace(string(data))
	}

	return &content.Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: contentType,
	}, nil
}

// Exists reports whether the object file is present.
func (s *FSObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(s.objectPath(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
}
