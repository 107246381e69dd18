package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/digest"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// UploadRequest describes one upload.
type UploadRequest struct {
	OwnerID    string
	Filename   string
	Visibility files.Visibility
	Tags       []string

	// ContentType is the declared type. Blank means detect from content.
	ContentType string

	// Size is the declared content length, or content.UnknownSize.
	Size int64

	Body io.Reader
}

// Upload stores a new file.
//
// On success the returned record is READY. On failure no record and no
// object are left behind, except when compensation itself fails, in which
// case the leftovers are logged and later reaped by the garbage collector.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*files.FileRecord, error) {
	start := s.now()
	rec, n, err := s.upload(ctx, req)
	s.metrics.ObserveUpload(outcomeOf(err), n, s.now().Sub(start))
	return rec, err
}

func (s *Service) upload(ctx context.Context, req UploadRequest) (*files.FileRecord, int64, error) {
	// ========================================================================
	// Step 1: Validate and normalize (no store is touched on failure)
	// ========================================================================

	owner, err := files.NormalizeOwner(req.OwnerID)
	if err != nil {
		return nil, 0, err
	}
	filename, err := files.NormalizeFilename(req.Filename)
	if err != nil {
		return nil, 0, err
	}
	tags, err := files.NormalizeTags(req.Tags)
	if err != nil {
		return nil, 0, err
	}
	if !req.Visibility.Valid() {
		return nil, 0, files.Validationf("visibility must be PUBLIC or PRIVATE, got %q", req.Visibility)
	}
	if req.Body == nil {
		return nil, 0, files.Validationf("content is required")
	}
	if req.Size < content.UnknownSize {
		return nil, 0, files.Validationf("invalid declared size %d", req.Size)
	}
	if s.limited() && req.Size > s.config.MaxUploadSize {
		return nil, 0, files.NewError(files.CodeTooLarge, "declared size exceeds upload limit", nil)
	}

	// ========================================================================
	// Step 2: Reserve the filename with a PENDING record
	// ========================================================================

	linkID, err := files.NewLinkID()
	if err != nil {
		return nil, 0, files.Transient("failed to generate link id", err)
	}

	declaredType := strings.TrimSpace(req.ContentType)
	now := s.now()

	pending, err := s.meta.InsertPending(ctx, files.FileRecord{
		OwnerID:     owner,
		Filename:    filename,
		Visibility:  req.Visibility,
		Tags:        tags,
		ContentType: declaredType,
		LinkID:      linkID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, metadata.ErrFilenameTaken) {
			return nil, 0, files.NewError(files.CodeFilenameConflict,
				"filename already in use: "+filename, err)
		}
		return nil, 0, files.Transient("failed to reserve filename", err)
	}

	logger.Debug("Upload reserved: id=%s owner=%s filename=%q", pending.ID, owner, filename)

	// ========================================================================
	// Step 3-5: Stream into the object store while hashing
	// ========================================================================

	key := pending.ObjectKey()

	hasher := digest.NewReader(s.capReader(req.Body, req.Size))

	head, err := readHead(hasher, s.config.ChunkSize)
	if err != nil {
		s.compensate(ctx, pending, false)
		return nil, hasher.N(), streamError(err, req.Size, s.config.MaxUploadSize)
	}

	contentType := resolveContentType(declaredType, head)
	stream := io.MultiReader(bytes.NewReader(head), hasher)

	if _, err := s.store(ctx, key, stream, head, req.Size, contentType); err != nil {
		logger.Warn("Upload %s failed while streaming: %v", pending.ID, err)
		s.compensate(ctx, pending, true)
		return nil, hasher.N(), streamError(err, req.Size, s.config.MaxUploadSize)
	}

	size := hasher.N()

	// ========================================================================
	// Step 6-7: Reject content the owner already stored
	// ========================================================================

	hash := hasher.Sum()

	existing, err := s.meta.FindByOwnerAndContentHash(ctx, owner, hash)
	switch {
	case err == nil:
		s.compensate(ctx, pending, true)
		return nil, size, files.NewError(files.CodeContentConflict,
			"identical content already uploaded as "+existing.Filename, nil)
	case !errors.Is(err, metadata.ErrNotFound):
		s.compensate(ctx, pending, true)
		return nil, size, files.Transient("content lookup failed", err)
	}

	// ========================================================================
	// Step 8: Finalize (the store enforces content uniqueness atomically)
	// ========================================================================

	ready, err := s.meta.Finalize(ctx, pending.ID, metadata.Finalization{
		Size:        size,
		ContentType: contentType,
		ContentHash: hash,
		At:          s.now(),
	})
	if err != nil {
		s.compensate(ctx, pending, true)
		if errors.Is(err, metadata.ErrContentTaken) {
			return nil, size, files.NewError(files.CodeContentConflict, "identical content already uploaded", err)
		}
		return nil, size, files.Transient("failed to finalize upload", err)
	}

	logger.Info("Upload complete: id=%s owner=%s filename=%q size=%d hash=%s",
		ready.ID, owner, ready.Filename, ready.Size, ready.ContentHash)

	return ready, size, nil
}

// limited reports whether uploads are capped.
func (s *Service) limited() bool {
	return s.config.MaxUploadSize > 0
}

// capReader bounds how much of body is ever read: at most the upload limit
// plus one byte, and at most the declared size plus one byte, so a body
// longer than declared is detected without draining it.
func (s *Service) capReader(body io.Reader, declared int64) io.Reader {
	limit := int64(-1)
	if s.limited() {
		limit = s.config.MaxUploadSize
	}

	r := body
	if declared >= 0 && declared < math.MaxInt64 {
		r = io.LimitReader(r, declared+1)
	}
	if limit >= 0 {
		r = &cappedReader{r: r, remaining: limit}
	}
	return r
}

// cappedReader fails with errTooLarge as soon as more than remaining bytes
// are read.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

// readHead reads up to size bytes. A short read at end of stream is not an
// error.
func readHead(r io.Reader, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:n], err
}

// resolveContentType prefers the declared type, then detection, then the
// generic default.
func resolveContentType(declared string, head []byte) string {
	if declared != "" {
		return declared
	}
	if len(head) == 0 {
		return files.DefaultContentType
	}
	return mimetype.Detect(head).String()
}

// store writes stream under key.
//
// A known size goes through a single Put. An unknown size goes through a
// multipart session when the store supports one, unless the whole content
// fit in head, which is then stored with its exact size.
func (s *Service) store(ctx context.Context, key string, stream io.Reader, head []byte, size int64, contentType string) (int64, error) {
	if size >= 0 {
		return s.objects.Put(ctx, key, stream, size, contentType)
	}

	// A short head means the body ended inside it.
	if int64(len(head)) < s.config.ChunkSize {
		return s.objects.Put(ctx, key, stream, int64(len(head)), contentType)
	}

	if mp, ok := s.objects.(content.MultipartObjectStore); ok {
		return s.putMultipart(ctx, mp, key, stream, contentType)
	}
	return s.objects.Put(ctx, key, stream, content.UnknownSize, contentType)
}

// putMultipart streams r as a sequence of parts. The session is aborted on
// any failure, with a context that survives cancellation of ctx.
func (s *Service) putMultipart(ctx context.Context, mp content.MultipartObjectStore, key string, r io.Reader, contentType string) (int64, error) {
	partSize := max(s.config.ChunkSize, mp.PartSize())

	uploadID, err := mp.BeginMultipartUpload(ctx, key, contentType)
	if err != nil {
		return 0, err
	}

	abort := func(cause error) (int64, error) {
		abortErr := mp.AbortMultipartUpload(context.WithoutCancel(ctx), key, uploadID)
		s.metrics.RecordCompensation("abort_multipart", abortErr)
		if abortErr != nil {
			logger.Error("Failed to abort multipart upload %s for %s: %v", uploadID, key, abortErr)
		}
		return 0, cause
	}

	var total int64
	buf := make([]byte, partSize)
	for partNumber := 1; ; partNumber++ {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := mp.UploadPart(ctx, key, uploadID, partNumber, buf[:n]); err != nil {
				return abort(err)
			}
			total += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return abort(readErr)
		}
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
	}

	if err := mp.CompleteMultipartUpload(ctx, key, uploadID); err != nil {
		return abort(err)
	}
	return total, nil
}

// compensate undoes a reservation: the object (when one may exist) and then
// the PENDING record. It runs detached from ctx's cancellation, and its
// failures are logged but never returned, so the caller's primary error
// always wins.
func (s *Service) compensate(ctx context.Context, pending *files.FileRecord, deleteObject bool) {
	cleanupCtx := context.WithoutCancel(ctx)

	if deleteObject {
		err := s.objects.Delete(cleanupCtx, pending.ObjectKey())
		s.metrics.RecordCompensation("delete_object", err)
		if err != nil {
			logger.Error("Compensation: failed to delete object %s: %v", pending.ObjectKey(), err)
		}
	}

	deleted, err := s.meta.DeleteByIDAndOwner(cleanupCtx, pending.ID, pending.OwnerID)
	s.metrics.RecordCompensation("delete_record", err)
	switch {
	case err != nil:
		logger.Error("Compensation: failed to delete pending record %s: %v", pending.ID, err)
	case !deleted:
		logger.Warn("Compensation: pending record %s already gone", pending.ID)
	default:
		logger.Debug("Compensation: rolled back upload %s", pending.ID)
	}
}
