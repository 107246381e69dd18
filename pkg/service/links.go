package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
)

// Download describes the content behind a link.
type Download struct {
	Record      files.FileRecord
	ObjectKey   string
	ContentType string
	Size        int64
}

// ResolveLink maps a link id to the READY record behind it. Links are not
// authenticated; anyone holding one may download. Results are never cached,
// so a deleted file stops resolving immediately.
func (s *Service) ResolveLink(ctx context.Context, linkID string) (Download, error) {
	start := s.now()
	d, err := s.resolveLink(ctx, linkID)
	s.metrics.ObserveOperation("resolve_link", s.now().Sub(start), err)
	return d, err
}

func (s *Service) resolveLink(ctx context.Context, linkID string) (Download, error) {
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return Download{}, files.NewError(files.CodeNotFound, "link not found", nil)
	}

	rec, err := s.meta.FindByLinkID(ctx, linkID)
	if err != nil {
		return Download{}, lookupError(err)
	}
	if !rec.IsReady() {
		return Download{}, files.NewError(files.CodeNotFound, "link not found", nil)
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = files.DefaultContentType
	}

	return Download{
		Record:      *rec,
		ObjectKey:   rec.ObjectKey(),
		ContentType: contentType,
		Size:        rec.Size,
	}, nil
}

// OpenLink resolves a link and opens its content. The caller must close the
// returned reader.
func (s *Service) OpenLink(ctx context.Context, linkID string) (Download, io.ReadCloser, error) {
	d, err := s.ResolveLink(ctx, linkID)
	if err != nil {
		return Download{}, nil, err
	}

	obj, err := s.objects.Get(ctx, d.ObjectKey)
	if err != nil {
		if errors.Is(err, content.ErrObjectNotFound) {
			return Download{}, nil, files.NewError(files.CodeNotFound, "content not found", err)
		}
		return Download{}, nil, files.Transient("failed to open content", err)
	}
	return d, obj.Body, nil
}
