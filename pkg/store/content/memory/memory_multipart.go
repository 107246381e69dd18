package memory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// session buffers the parts of one multipart upload.
type session struct {
	key         string
	contentType string
	nextPart    int
	buf         bytes.Buffer
}

// BeginMultipartUpload opens a buffered upload session for key.
func (s *MemoryObjectStore) BeginMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := content.ValidateKey(key); err != nil {
		return "", err
	}

	uploadID := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[uploadID] = &session{key: key, contentType: contentType, nextPart: 1}
	return uploadID, nil
}

// UploadPart appends one part to the session. Parts must arrive in order.
func (s *MemoryObjectStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupSession(key, uploadID)
	if err != nil {
		return err
	}
	if partNumber != sess.nextPart {
		return fmt.Errorf("upload %s: got part %d, expected %d", uploadID, partNumber, sess.nextPart)
	}

	sess.buf.Write(data)
	sess.nextPart++
	return nil
}

// CompleteMultipartUpload publishes the buffered parts as one object.
func (s *MemoryObjectStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupSession(key, uploadID)
	if err != nil {
		return err
	}

	s.objects[key] = object{data: sess.buf.Bytes(), contentType: sess.contentType}
	delete(s.sessions, uploadID)
	return nil
}

// AbortMultipartUpload discards the session. Unknown sessions are ignored.
func (s *MemoryObjectStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, uploadID)
	return nil
}

// PartSize returns the preferred part size.
func (s *MemoryObjectStore) PartSize() int64 {
	return s.partSize
}

// PendingUploads returns the number of open multipart sessions.
func (s *MemoryObjectStore) PendingUploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// lookupSession must be called with s.mu held.
func (s *MemoryObjectStore) lookupSession(key, uploadID string) (*session, error) {
	sess, ok := s.sessions[uploadID]
	if !ok || sess.key != key {
		return nil, fmt.Errorf("upload %s for %s: %w", uploadID, key, content.ErrUploadNotFound)
	}
	return sess, nil
}

var _ content.MultipartObjectStore = (*MemoryObjectStore)(nil)
