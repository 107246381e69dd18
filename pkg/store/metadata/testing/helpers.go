package testing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/digest"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// baseTime is the creation time of the first record of a test. Microsecond
// precision keeps SQL backends round-tripping timestamps exactly.
var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// uniqueOwner returns an owner id no other test uses.
func uniqueOwner(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// pendingRecord builds a record ready for InsertPending.
func pendingRecord(owner, filename string, at time.Time) files.FileRecord {
	linkID, err := files.NewLinkID()
	if err != nil {
		panic(err)
	}
	return files.FileRecord{
		OwnerID:     owner,
		Filename:    filename,
		Visibility:  files.VisibilityPrivate,
		Tags:        []string{},
		ContentType: files.DefaultContentType,
		LinkID:      linkID,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// hashOf returns the hex SHA-256 of s.
func hashOf(s string) string {
	return digest.Sum256([]byte(s))
}

// mustInsert inserts a PENDING record and returns it.
func mustInsert(t *testing.T, store metadata.Store, rec files.FileRecord) *files.FileRecord {
	t.Helper()
	out, err := store.InsertPending(testContext(), rec)
	require.NoError(t, err)
	require.NotEmpty(t, out.ID)
	return out
}

// mustFinalize moves a PENDING record to READY.
func mustFinalize(t *testing.T, store metadata.Store, id, body string, at time.Time) *files.FileRecord {
	t.Helper()
	out, err := store.Finalize(testContext(), id, metadata.Finalization{
		Size:        int64(len(body)),
		ContentType: "text/plain",
		ContentHash: hashOf(body),
		At:          at,
	})
	require.NoError(t, err)
	return out
}

// mustReady inserts and finalizes a record in one step.
func mustReady(t *testing.T, store metadata.Store, rec files.FileRecord, body string) *files.FileRecord {
	t.Helper()
	pending := mustInsert(t, store, rec)
	return mustFinalize(t, store, pending.ID, body, rec.CreatedAt)
}

// ids returns the ids of records in order.
func ids(records []files.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// filenames returns the filenames of records in order.
func filenames(records []files.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Filename
	}
	return out
}
