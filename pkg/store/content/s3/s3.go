// Package s3 implements an object store on any S3-compatible service.
//
// Small objects of known size are uploaded with a single PutObject. Larger
// or unknown-length content is streamed as a multipart upload with at most
// one part buffered in memory, so upload memory stays bounded by the part
// size regardless of object size.
package s3

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

const (
	// DefaultPartSize is used when the configuration leaves it unset.
	DefaultPartSize int64 = 10 * 1024 * 1024

	minPartSize int64 = 5 * 1024 * 1024
	maxPartSize int64 = 5 * 1024 * 1024 * 1024

	// abortTimeout bounds cleanup of a failed multipart upload.
	abortTimeout = 30 * time.Second
)

// S3ObjectStore implements content.ObjectStore on S3.
//
// Implemented Interfaces:
//   - content.ObjectStore
//   - content.MultipartObjectStore
//   - content.GarbageCollectableStore
//
// Thread Safety: safe for concurrent use.
type S3ObjectStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   S3Metrics

	// uploadSessions tracks the completed parts of in-flight multipart
	// uploads, keyed by upload id.
	uploadSessions   map[string]*multipartUpload
	uploadSessionsMu sync.RWMutex
}

// S3ObjectStoreConfig contains the dependencies of an S3ObjectStore.
type S3ObjectStoreConfig struct {
	// Client is a configured S3 client (required).
	Client *s3.Client

	// Bucket must already exist (required).
	Bucket string

	// KeyPrefix is prepended to every key, e.g. "dittofiles/".
	KeyPrefix string

	// PartSize is the multipart part size, between 5MB and 5GB.
	// Default: 10MB
	PartSize int64

	// Metrics is optional; nil disables collection.
	Metrics S3Metrics
}

// NewS3ObjectStore validates the configuration and checks that the bucket is
// reachable.
func NewS3ObjectStore(ctx context.Context, cfg S3ObjectStoreConfig) (*S3ObjectStore, error) {
	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < minPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > maxPartSize {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3ObjectStore{
		client:         cfg.Client,
		bucket:         cfg.Bucket,
		keyPrefix:      cfg.KeyPrefix,
		partSize:       partSize,
		metrics:        metrics,
		uploadSessions: make(map[string]*multipartUpload),
	}, nil
}

// objectKey maps a store key to the S3 key.
func (s *S3ObjectStore) objectKey(key string) string {
	return s.keyPrefix + key
}

// Get opens the object for streaming. The caller must close the body.
func (s *S3ObjectStore) Get(ctx context.Context, key string) (*content.Object, error) {
	start := time.Now()
	obj, err := s.get(ctx, key)
	s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	return obj, err
}

func (s *S3ObjectStore) get(ctx context.Context, key string) (*content.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := content.ValidateKey(key); err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, content.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &content.Object{
		Body:        newMeteredBody(result.Body, s.metrics),
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: aws.ToString(result.ContentType),
	}, nil
}

// Exists issues a HeadObject for key.
func (s *S3ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := content.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// Delete removes key. S3 DeleteObject already succeeds for missing keys.
func (s *S3ObjectStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.delete(ctx, key)
	s.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
	return err
}

func (s *S3ObjectStore) delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	return nil
}

// PartSize returns the multipart part size.
func (s *S3ObjectStore) PartSize() int64 {
	return s.partSize
}

// Close is a no-op; the S3 client owns no resources that need releasing.
func (s *S3ObjectStore) Close() error {
	return nil
}

// isNotFound reports whether err is S3's "no such key" in either the
// GetObject (NoSuchKey) or HeadObject (NotFound) form.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

var (
	_ content.MultipartObjectStore    = (*S3ObjectStore)(nil)
	_ content.GarbageCollectableStore = (*S3ObjectStore)(nil)
)
