package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// multipartUpload tracks the parts uploaded so far in one session.
type multipartUpload struct {
	key            string
	completedParts []types.CompletedPart
	mu             sync.Mutex
}

// BeginMultipartUpload starts an S3 multipart upload for key.
func (s *S3ObjectStore) BeginMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := content.ValidateKey(key); err != nil {
		return "", err
	}

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	result, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}

	uploadID := aws.ToString(result.UploadId)

	s.uploadSessionsMu.Lock()
	s.uploadSessions[uploadID] = &multipartUpload{key: key}
	s.uploadSessionsMu.Unlock()

	return uploadID, nil
}

// UploadPart uploads one part and records its ETag in the session.
func (s *S3ObjectStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upload, err := s.session(key, uploadID)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	s.metrics.ObserveOperation("UploadPart", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	s.metrics.RecordBytes("write", int64(len(data)))

	upload.mu.Lock()
	upload.completedParts = append(upload.completedParts, types.CompletedPart{
		ETag:       result.ETag,
		PartNumber: aws.Int32(int32(partNumber)),
	})
	upload.mu.Unlock()

	return nil
}

// CompleteMultipartUpload assembles the tracked parts in part-number order.
func (s *S3ObjectStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upload, err := s.session(key, uploadID)
	if err != nil {
		return err
	}

	upload.mu.Lock()
	completedParts := slices.Clone(upload.completedParts)
	upload.mu.Unlock()

	slices.SortFunc(completedParts, func(a, b types.CompletedPart) int {
		return int(aws.ToInt32(a.PartNumber) - aws.ToInt32(b.PartNumber))
	})

	start := time.Now()
	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(key)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	s.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	s.forgetSession(uploadID)
	return nil
}

// AbortMultipartUpload aborts the session. NoSuchUpload is not an error.
func (s *S3ObjectStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	defer s.forgetSession(uploadID)

	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.objectKey(key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if !errors.As(err, &noSuchUpload) {
			return fmt.Errorf("failed to abort multipart upload: %w", err)
		}
	}

	return nil
}

func (s *S3ObjectStore) session(key, uploadID string) (*multipartUpload, error) {
	s.uploadSessionsMu.RLock()
	upload, ok := s.uploadSessions[uploadID]
	s.uploadSessionsMu.RUnlock()

	if !ok || upload.key != key {
		return nil, fmt.Errorf("upload %s for %s: %w", uploadID, key, content.ErrUploadNotFound)
	}
	return upload, nil
}

func (s *S3ObjectStore) forgetSession(uploadID string) {
	s.uploadSessionsMu.Lock()
	delete(s.uploadSessions, uploadID)
	s.uploadSessionsMu.Unlock()
}
