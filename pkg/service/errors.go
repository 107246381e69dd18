package service

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// errTooLarge is returned by the capped reader once the upload limit is
// exceeded. Object stores propagate it as a read failure.
var errTooLarge = errors.New("upload limit exceeded")

// outcomeOf maps an upload error to a metrics outcome label.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch files.CodeOf(err) {
	case files.CodeValidation:
		return OutcomeValidation
	case files.CodeFilenameConflict:
		return OutcomeFilenameConflict
	case files.CodeContentConflict:
		return OutcomeContentConflict
	case files.CodeTooLarge:
		return OutcomeTooLarge
	default:
		return OutcomeTransient
	}
}

// lookupError translates a metadata lookup failure.
func lookupError(err error) error {
	if errors.Is(err, metadata.ErrNotFound) {
		return files.NewError(files.CodeNotFound, "file not found", err)
	}
	return files.Transient("metadata lookup failed", err)
}

// streamError translates a failure while streaming into the object store.
func streamError(err error, declared, limit int64) error {
	switch {
	case errors.Is(err, errTooLarge):
		return files.NewError(files.CodeTooLarge, fmt.Sprintf("content exceeds %d bytes", limit), err)
	case errors.Is(err, content.ErrSizeMismatch):
		return files.NewError(files.CodeValidation,
			fmt.Sprintf("content length does not match declared size %d", declared), err)
	default:
		return files.Transient("failed to store content", err)
	}
}
