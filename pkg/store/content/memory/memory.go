// Package memory implements an in-memory object store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// DefaultPartSize is the preferred multipart part size of the memory store.
const DefaultPartSize int64 = 1 << 20

type object struct {
	data        []byte
	contentType string
}

// MemoryObjectStore implements content.ObjectStore using in-memory storage.
//
// It is designed for tests, development and ephemeral deployments. Data is
// lost on restart and bounded by available RAM.
//
// Implemented Interfaces:
//   - content.ObjectStore
//   - content.MultipartObjectStore (parts buffered until completion)
//   - content.GarbageCollectableStore
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on the way
// in and on the way out, so callers never share buffers with the store.
type MemoryObjectStore struct {
	mu       sync.RWMutex
	objects  map[string]object
	sessions map[string]*session
	partSize int64
}

// Option customizes a MemoryObjectStore.
type Option func(*MemoryObjectStore)

// WithPartSize overrides the preferred multipart part size.
func WithPartSize(size int64) Option {
	return func(s *MemoryObjectStore) {
		if size > 0 {
			s.partSize = size
		}
	}
}

// NewMemoryObjectStore creates an empty in-memory object store.
func NewMemoryObjectStore(opts ...Option) *MemoryObjectStore {
	s := &MemoryObjectStore{
		objects:  make(map[string]object),
		sessions: make(map[string]*session),
		partSize: DefaultPartSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put reads r fully and stores it under key.
//
// The object is only inserted once the whole stream has been read, so a
// failing reader never leaves a partial object behind.
func (s *MemoryObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error) {
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
	// Step 2: Drain the reader outside the lock
	// ========================================================================

	// The declared size is only a hint from the caller; never preallocate
	// more than one part for it.
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(min(size, DefaultPartSize)))
	}
	n, err := io.Copy(&buf, contextReader{ctx: ctx, r: r})
	if err != nil {
		return n, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if size != content.UnknownSize && n != size {
		return n, fmt.Errorf("object %s: wrote %d bytes, expected %d: %w", key, n, size, content.ErrSizeMismatch)
	}

	// ========================================================================
	// Step 3: Publish the object
	// ========================================================================

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = object{data: buf.Bytes(), contentType: contentType}
	return n, nil
}

// Get returns a copy of the object stored under key.
func (s *MemoryObjectStore) Get(ctx context.Context, key string) (*content.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, content.ErrObjectNotFound)
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)

	return &content.Object{
		Body:        io.NopCloser(bytes.NewReader(data)),
		Size:        int64(len(data)),
		ContentType: obj.contentType,
	}, nil
}

// Delete removes key. Missing keys are ignored.
func (s *MemoryObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// Exists reports whether key is stored.
func (s *MemoryObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

// Len returns the number of stored objects.
func (s *MemoryObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Close is a no-op.
func (s *MemoryObjectStore) Close() error {
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
