package service

import (
	"context"

	"github.com/marmos91/dittofiles/pkg/files"
)

// ListOwned lists the owner's READY files.
func (s *Service) ListOwned(ctx context.Context, ownerID string, raw files.RawQuery) (files.Page, error) {
	owner, err := files.NormalizeOwner(ownerID)
	if err != nil {
		return files.Page{}, err
	}
	return s.list(ctx, files.OwnedBy(owner), raw)
}

// ListPublic lists every owner's PUBLIC READY files.
func (s *Service) ListPublic(ctx context.Context, raw files.RawQuery) (files.Page, error) {
	return s.list(ctx, files.PublicScope(), raw)
}

func (s *Service) list(ctx context.Context, scope files.Scope, raw files.RawQuery) (files.Page, error) {
	start := s.now()

	query, err := s.config.Pagination.Normalize(scope, raw)
	if err != nil {
		return files.Page{}, err
	}

	page, err := s.meta.List(ctx, query)
	if err != nil {
		err = files.Transient("failed to list files", err)
	}
	s.metrics.ObserveOperation("list", s.now().Sub(start), err)
	return page, err
}

// Healthcheck verifies the metadata store is reachable.
func (s *Service) Healthcheck(ctx context.Context) error {
	return s.meta.Healthcheck(ctx)
}
