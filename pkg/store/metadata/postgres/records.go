package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// fileColumns is the column list of every SELECT and RETURNING clause, in
// the order scanRecord expects.
const fileColumns = `id, owner_id, filename, visibility, tags, size, content_type,
	content_hash, link_id, status, created_at, updated_at`

// scanRecord scans one row selected with fileColumns.
func scanRecord(row pgx.Row) (*files.FileRecord, error) {
	var (
		rec         files.FileRecord
		visibility  string
		status      string
		contentHash *string
	)

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Filename, &visibility, &rec.Tags, &rec.Size, &rec.ContentType,
		&contentHash, &rec.LinkID, &status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Visibility = files.Visibility(visibility)
	rec.Status = files.Status(status)
	if contentHash != nil {
		rec.ContentHash = *contentHash
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ============================================================================
// Mutations
// ============================================================================

// InsertPending persists a new PENDING record.
func (s *PostgresMetadataStore) InsertPending(ctx context.Context, record files.FileRecord) (*files.FileRecord, error) {
	rec, err := metadata.PreparePending(record)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO files (id, owner_id, filename, visibility, tags, size, content_type,
			content_hash, link_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, NULL, $7, $8, $9, $10)
		RETURNING %s`, fileColumns)

	out, err := scanRecord(s.pool.QueryRow(ctx, query,
		rec.ID, rec.OwnerID, rec.Filename, string(rec.Visibility), rec.Tags, rec.ContentType,
		rec.LinkID, string(files.StatusPending), rec.CreatedAt, rec.UpdatedAt,
	))
	if err != nil {
		return nil, mapError("insert "+rec.Filename, err)
	}
	return out, nil
}

// Finalize moves a PENDING record to READY.
func (s *PostgresMetadataStore) Finalize(ctx context.Context, id string, fin metadata.Finalization) (*files.FileRecord, error) {
	query := fmt.Sprintf(`
		UPDATE files
		SET status = 'READY', size = $2, content_type = $3, content_hash = $4, updated_at = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING %s`, fileColumns)

	out, err := scanRecord(s.pool.QueryRow(ctx, query,
		id, fin.Size, fin.ContentType, nullable(fin.ContentHash), fin.At,
	))
	if err != nil {
		return nil, mapError("finalize "+id, err)
	}
	return out, nil
}

// Rename changes the filename of a record. Renaming to the current name
// leaves UpdatedAt untouched.
func (s *PostgresMetadataStore) Rename(ctx context.Context, id, newFilename string, at time.Time) (*files.FileRecord, error) {
	query := fmt.Sprintf(`
		UPDATE files
		SET updated_at = CASE WHEN filename = $2 THEN updated_at ELSE $3 END,
			filename = $2
		WHERE id = $1
		RETURNING %s`, fileColumns)

	out, err := scanRecord(s.pool.QueryRow(ctx, query, id, newFilename, at))
	if err != nil {
		return nil, mapError("rename "+id, err)
	}
	return out, nil
}

// DeleteByIDAndOwner removes the record if ownerID owns it.
func (s *PostgresMetadataStore) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM files WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, mapError("delete "+id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePending removes the record if ownerID owns it and it is still
// PENDING.
func (s *PostgresMetadataStore) DeletePending(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM files WHERE id = $1 AND owner_id = $2 AND status = 'PENDING'`, id, ownerID)
	if err != nil {
		return false, mapError("delete pending "+id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ============================================================================
// Lookups
// ============================================================================

// findOne runs a single-row SELECT with the given WHERE clause.
func (s *PostgresMetadataStore) findOne(ctx context.Context, op, where string, args ...any) (*files.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s`, fileColumns, where)

	out, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

// FindByID returns the record with the given id.
func (s *PostgresMetadataStore) FindByID(ctx context.Context, id string) (*files.FileRecord, error) {
	return s.findOne(ctx, "find "+id, `id = $1`, id)
}

// FindByOwnerAndFilename returns the owner's record with this filename.
func (s *PostgresMetadataStore) FindByOwnerAndFilename(ctx context.Context, ownerID, filename string) (*files.FileRecord, error) {
	return s.findOne(ctx, "find filename "+filename, `owner_id = $1 AND filename = $2`, ownerID, filename)
}

// FindByOwnerAndContentHash returns the owner's READY record with this hash.
func (s *PostgresMetadataStore) FindByOwnerAndContentHash(ctx context.Context, ownerID, hash string) (*files.FileRecord, error) {
	return s.findOne(ctx, "find hash "+hash,
		`owner_id = $1 AND content_hash = $2 AND status = 'READY'`, ownerID, hash)
}

// FindByLinkID returns the READY record with this link id.
func (s *PostgresMetadataStore) FindByLinkID(ctx context.Context, linkID string) (*files.FileRecord, error) {
	return s.findOne(ctx, "find link", `link_id = $1 AND status = 'READY'`, linkID)
}

// CountByContentHash counts READY records with this hash across owners.
func (s *PostgresMetadataStore) CountByContentHash(ctx context.Context, hash string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM files WHERE content_hash = $1 AND status = 'READY'`, hash,
	).Scan(&count)
	if err != nil {
		return 0, mapError("count hash "+hash, err)
	}
	return count, nil
}

var _ metadata.Store = (*PostgresMetadataStore)(nil)
