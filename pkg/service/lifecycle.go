package service

import (
	"context"
	"errors"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// findOwned loads a READY record and checks ownership. PENDING records are
// reported as not found; they belong to an upload still in flight.
func (s *Service) findOwned(ctx context.Context, ownerID, fileID string) (*files.FileRecord, error) {
	owner, err := files.NormalizeOwner(ownerID)
	if err != nil {
		return nil, err
	}

	rec, err := s.meta.FindByID(ctx, fileID)
	if err != nil {
		return nil, lookupError(err)
	}
	if !rec.IsReady() {
		return nil, files.NewError(files.CodeNotFound, "file not found", nil)
	}
	if rec.OwnerID != owner {
		return nil, files.NewError(files.CodeForbidden, "not the owner of this file", nil)
	}
	return rec, nil
}

// Stat returns one of the owner's READY records.
func (s *Service) Stat(ctx context.Context, ownerID, fileID string) (*files.FileRecord, error) {
	start := s.now()
	rec, err := s.findOwned(ctx, ownerID, fileID)
	s.metrics.ObserveOperation("stat", s.now().Sub(start), err)
	return rec, err
}

// Rename changes the filename of one of the owner's files. Content, link and
// object key are untouched. Renaming to the current name returns the record
// unchanged.
func (s *Service) Rename(ctx context.Context, ownerID, fileID, newFilename string) (*files.FileRecord, error) {
	start := s.now()
	rec, err := s.rename(ctx, ownerID, fileID, newFilename)
	s.metrics.ObserveOperation("rename", s.now().Sub(start), err)
	return rec, err
}

func (s *Service) rename(ctx context.Context, ownerID, fileID, newFilename string) (*files.FileRecord, error) {
	filename, err := files.NormalizeFilename(newFilename)
	if err != nil {
		return nil, err
	}

	rec, err := s.findOwned(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if rec.Filename == filename {
		return rec, nil
	}

	other, err := s.meta.FindByOwnerAndFilename(ctx, rec.OwnerID, filename)
	switch {
	case err == nil && other.ID != rec.ID:
		return nil, files.NewError(files.CodeFilenameConflict, "filename already in use: "+filename, nil)
	case err != nil && !errors.Is(err, metadata.ErrNotFound):
		return nil, files.Transient("filename lookup failed", err)
	}

	renamed, err := s.meta.Rename(ctx, rec.ID, filename, s.now())
	switch {
	case errors.Is(err, metadata.ErrFilenameTaken):
		return nil, files.NewError(files.CodeFilenameConflict, "filename already in use: "+filename, err)
	case errors.Is(err, metadata.ErrNotFound):
		return nil, files.NewError(files.CodeNotFound, "file not found", err)
	case err != nil:
		return nil, files.Transient("failed to rename file", err)
	}

	logger.Info("Renamed file: id=%s owner=%s %q -> %q", rec.ID, rec.OwnerID, rec.Filename, renamed.Filename)
	return renamed, nil
}

// Delete removes one of the owner's files and its object. It reports
// whether a record was removed; false means a concurrent delete won.
//
// The object is deleted after the record. If that fails the object is an
// orphan, which is logged and left to the garbage collector.
func (s *Service) Delete(ctx context.Context, ownerID, fileID string) (bool, error) {
	start := s.now()
	deleted, err := s.delete(ctx, ownerID, fileID)
	s.metrics.ObserveOperation("delete", s.now().Sub(start), err)
	return deleted, err
}

func (s *Service) delete(ctx context.Context, ownerID, fileID string) (bool, error) {
	rec, err := s.findOwned(ctx, ownerID, fileID)
	if err != nil {
		return false, err
	}

	deleted, err := s.meta.DeleteByIDAndOwner(ctx, rec.ID, rec.OwnerID)
	if err != nil {
		return false, files.Transient("failed to delete record", err)
	}
	if !deleted {
		return false, nil
	}

	if err := s.objects.Delete(context.WithoutCancel(ctx), rec.ObjectKey()); err != nil {
		logger.Warn("Deleted record %s but failed to delete object %s: %v", rec.ID, rec.ObjectKey(), err)
	}

	logger.Info("Deleted file: id=%s owner=%s filename=%q", rec.ID, rec.OwnerID, rec.Filename)
	return true, nil
}
