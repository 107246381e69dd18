package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// Put uploads r under key.
//
// Write Behavior:
//   - Content that fits in one part is buffered and sent with PutObject
//   - Anything larger, or of unknown length, is streamed as a multipart
//     upload, one part in memory at a time
//   - A failed multipart upload is aborted before Put returns
//
// Memory Usage: at most ~1x partSize per call.
func (s *S3ObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error) {
	start := time.Now()
	n, err := s.put(ctx, key, r, size, contentType)
	s.metrics.ObserveOperation("Put", time.Since(start), err)
	return n, err
}

func (s *S3ObjectStore) put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := content.ValidateKey(key); err != nil {
		return 0, err
	}

	w := &s3Writer{
		store:       s,
		ctx:         ctx,
		key:         key,
		contentType: contentType,
		buffer:      &bytes.Buffer{},
		partSize:    s.partSize,
	}

	n, err := io.CopyBuffer(w, r, make([]byte, 32*1024))
	if err != nil {
		w.abort()
		return n, fmt.Errorf("failed to stream object %s: %w", key, err)
	}
	if size != content.UnknownSize && n != size {
		w.abort()
		return n, fmt.Errorf("object %s: wrote %d bytes, expected %d: %w", key, n, size, content.ErrSizeMismatch)
	}
	if err := w.Close(); err != nil {
		return n, err
	}

	return n, nil
}

// s3Writer implements io.WriteCloser for streaming writes to S3.
// It switches to a multipart upload once a full part has been buffered.
type s3Writer struct {
	store       *S3ObjectStore
	ctx         context.Context
	key         string
	contentType string
	buffer      *bytes.Buffer
	partSize    int64
	uploadID    string
	partNum     int
	err         error
}

func (w *s3Writer) Write(p []byte) (n int, err error) {
	if w.err != nil {
		return 0, w.err
	}

	n, _ = w.buffer.Write(p)

	if int64(w.buffer.Len()) >= w.partSize {
		if err := w.uploadPart(); err != nil {
			w.err = err
			return n, err
		}
	}

	return n, nil
}

func (w *s3Writer) uploadPart() error {
	if w.buffer.Len() == 0 {
		return nil
	}

	// Start multipart upload on first part
	if w.uploadID == "" {
		uploadID, err := w.store.BeginMultipartUpload(w.ctx, w.key, w.contentType)
		if err != nil {
			return fmt.Errorf("failed to begin multipart upload: %w", err)
		}
		w.uploadID = uploadID
	}

	w.partNum++
	// The buffer is reset below and its backing array reused
	data := bytes.Clone(w.buffer.Bytes())

	if err := w.store.UploadPart(w.ctx, w.key, w.uploadID, w.partNum, data); err != nil {
		return err
	}

	w.buffer.Reset()
	return nil
}

// Close publishes the object: PutObject when no part was uploaded yet,
// otherwise the final part followed by CompleteMultipartUpload.
func (w *s3Writer) Close() error {
	if w.err != nil {
		w.abort()
		return w.err
	}

	if w.uploadID == "" {
		data := w.buffer.Bytes()
		input := &s3.PutObjectInput{
			Bucket:        aws.String(w.store.bucket),
			Key:           aws.String(w.store.objectKey(w.key)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		}
		if w.contentType != "" {
			input.ContentType = aws.String(w.contentType)
		}
		if _, err := w.store.client.PutObject(w.ctx, input); err != nil {
			w.err = fmt.Errorf("failed to write object to S3: %w", err)
			return w.err
		}
		w.store.metrics.RecordBytes("write", int64(len(data)))
		return nil
	}

	if err := w.uploadPart(); err != nil {
		w.err = err
		w.abort()
		return err
	}

	if err := w.store.CompleteMultipartUpload(w.ctx, w.key, w.uploadID); err != nil {
		w.err = err
		w.abort()
		return err
	}

	return nil
}

// abort discards an in-progress multipart upload. It runs on a fresh
// context so cancellation of the request does not leak parts.
func (w *s3Writer) abort() {
	if w.uploadID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	_ = w.store.AbortMultipartUpload(ctx, w.key, w.uploadID)
	w.uploadID = ""
}
