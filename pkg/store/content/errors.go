package content

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by ObjectStore implementations. Backends wrap
// them with context using fmt.Errorf("...: %w", err).
var (
	// ErrObjectNotFound indicates the requested key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrSizeMismatch indicates the stream length differs from the declared
	// size passed to Put.
	ErrSizeMismatch = errors.New("object size mismatch")

	// ErrUploadNotFound indicates an unknown or already finished multipart
	// session.
	ErrUploadNotFound = errors.New("multipart upload not found")

	// ErrInvalidKey indicates a key the backend cannot store.
	ErrInvalidKey = errors.New("invalid object key")
)

// ValidateKey rejects keys that are empty, absolute, or that contain empty,
// "." or ".." segments. Every backend calls it before touching storage.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
