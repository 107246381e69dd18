package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// Constraint names declared in migrations/0001_files.up.sql.
const (
	constraintOwnerFilename = "files_owner_filename_key"
	constraintOwnerHash     = "files_owner_content_hash_key"
	constraintLinkID        = "files_link_id_key"
)

// mapError translates driver errors into metadata sentinel errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, metadata.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case constraintOwnerFilename:
			return fmt.Errorf("%s: %w", op, metadata.ErrFilenameTaken)
		case constraintOwnerHash:
			return fmt.Errorf("%s: %w", op, metadata.ErrContentTaken)
		case constraintLinkID:
			return fmt.Errorf("%s: %w", op, metadata.ErrLinkTaken)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
