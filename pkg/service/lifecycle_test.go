package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/content/memory"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
	metamemory "github.com/marmos91/dittofiles/pkg/store/metadata/memory"
)

// insertPending reserves a filename without uploading anything.
func insertPending(t *testing.T, meta metadata.Store, owner, filename string) *files.FileRecord {
	t.Helper()
	linkID, err := files.NewLinkID()
	require.NoError(t, err)
	rec, err := meta.InsertPending(context.Background(), files.FileRecord{
		OwnerID: owner, Filename: filename, Visibility: files.VisibilityPublic, LinkID: linkID,
	})
	require.NoError(t, err)
	return rec
}

// ============================================================================
// Rename
// ============================================================================

func TestRename(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "old.txt", "data"))

		renamed, err := env.svc.Rename(ctx, "u1", rec.ID, "  new.txt ")
		require.NoError(t, err)
		assert.Equal(t, "new.txt", renamed.Filename)
		assert.Equal(t, rec.ID, renamed.ID)
		assert.Equal(t, rec.LinkID, renamed.LinkID)
		assert.Equal(t, rec.ContentHash, renamed.ContentHash)
		assert.True(t, renamed.UpdatedAt.After(rec.UpdatedAt))

		// Content stays where it was.
		assert.Equal(t, []byte("data"), readAll(t, env.objects, renamed))

		// The old name is free again.
		mustUpload(t, env, req("u1", "old.txt", "other"))
	})
}

func TestRename_SameNameIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		rec := mustUpload(t, env, req("u1", "same.txt", "data"))

		renamed, err := env.svc.Rename(context.Background(), "u1", rec.ID, "same.txt")
		require.NoError(t, err)
		assert.Equal(t, rec.Filename, renamed.Filename)
		assert.True(t, rec.UpdatedAt.Equal(renamed.UpdatedAt), "UpdatedAt must not move")
	})
}

func TestRename_Conflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustUpload(t, env, req("u1", "a.txt", "a"))
		b := mustUpload(t, env, req("u1", "b.txt", "b"))

		_, err := env.svc.Rename(context.Background(), "u1", b.ID, "a.txt")
		assert.ErrorIs(t, err, files.ErrFilenameConflict)

		stored, err := env.meta.FindByID(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Equal(t, "b.txt", stored.Filename)
	})
}

func TestRename_ConflictWithPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		rec := mustUpload(t, env, req("u1", "a.txt", "a"))
		insertPending(t, env.meta, "u1", "uploading.txt")

		_, err := env.svc.Rename(context.Background(), "u1", rec.ID, "uploading.txt")
		assert.ErrorIs(t, err, files.ErrFilenameConflict)
	})
}

func TestRename_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "a.txt", "a"))
		pending := insertPending(t, env.meta, "u1", "pending.txt")

		_, err := env.svc.Rename(ctx, "u2", rec.ID, "mine.txt")
		assert.ErrorIs(t, err, files.ErrForbidden)

		_, err = env.svc.Rename(ctx, "u1", metadata.NewRecordID(), "x.txt")
		assert.ErrorIs(t, err, files.ErrNotFound)

		_, err = env.svc.Rename(ctx, "u1", pending.ID, "x.txt")
		assert.ErrorIs(t, err, files.ErrNotFound, "pending records are invisible")

		_, err = env.svc.Rename(ctx, "u1", rec.ID, "bad/name")
		assert.ErrorIs(t, err, files.ErrValidation)

		_, err = env.svc.Rename(ctx, "", rec.ID, "x.txt")
		assert.ErrorIs(t, err, files.ErrValidation)
	})
}

func TestRename_OtherOwnersNamespace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustUpload(t, env, req("u1", "taken.txt", "one"))
		mine := mustUpload(t, env, req("u2", "mine.txt", "two"))

		renamed, err := env.svc.Rename(context.Background(), "u2", mine.ID, "taken.txt")
		require.NoError(t, err)
		assert.Equal(t, "taken.txt", renamed.Filename)
	})
}

// ============================================================================
// Delete
// ============================================================================

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "a.txt", "data"))

		deleted, err := env.svc.Delete(ctx, "u1", rec.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = env.meta.FindByID(ctx, rec.ID)
		assert.ErrorIs(t, err, metadata.ErrNotFound)

		_, err = env.objects.Get(ctx, rec.ObjectKey())
		assert.ErrorIs(t, err, content.ErrObjectNotFound)

		_, err = env.svc.ResolveLink(ctx, rec.LinkID)
		assert.ErrorIs(t, err, files.ErrNotFound)

		// Deleting again reports the record as gone.
		_, err = env.svc.Delete(ctx, "u1", rec.ID)
		assert.ErrorIs(t, err, files.ErrNotFound)

		// Filename and content are both free again.
		mustUpload(t, env, req("u1", "a.txt", "data"))
	})
}

func TestDelete_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "a.txt", "data"))
		pending := insertPending(t, env.meta, "u1", "pending.txt")

		deleted, err := env.svc.Delete(ctx, "u2", rec.ID)
		assert.ErrorIs(t, err, files.ErrForbidden)
		assert.False(t, deleted)

		_, err = env.svc.Delete(ctx, "u1", pending.ID)
		assert.ErrorIs(t, err, files.ErrNotFound)

		_, err = env.svc.Delete(ctx, "u1", metadata.NewRecordID())
		assert.ErrorIs(t, err, files.ErrNotFound)

		// Nothing was removed.
		_, err = env.meta.FindByID(ctx, rec.ID)
		assert.NoError(t, err)
		assert.Equal(t, 1, env.objects.Len())
	})
}

func TestDelete_ObjectFailureStillRemovesRecord(t *testing.T) {
	meta := metamemory.NewMemoryMetadataStore()
	objects := memory.NewMemoryObjectStore()
	faulty := &faultyObjectStore{ObjectStore: objects}
	svc := New(meta, faulty, Config{}, nil)

	rec, err := svc.Upload(context.Background(), req("u1", "a.txt", "data"))
	require.NoError(t, err)

	faulty.deleteErr = errors.New("object store down")
	deleted, err := svc.Delete(context.Background(), "u1", rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = meta.FindByID(context.Background(), rec.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	// The orphan stays until the collector sweeps it.
	assert.Equal(t, 1, objects.Len())
}

// ============================================================================
// Links and Stat
// ============================================================================

func TestResolveLink(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "a.txt", "payload"))

		d, err := env.svc.ResolveLink(ctx, rec.LinkID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, d.Record.ID)
		assert.Equal(t, rec.ObjectKey(), d.ObjectKey)
		assert.Equal(t, rec.ContentType, d.ContentType)
		assert.Equal(t, int64(7), d.Size)

		pending := insertPending(t, env.meta, "u1", "pending.txt")
		_, err = env.svc.ResolveLink(ctx, pending.LinkID)
		assert.ErrorIs(t, err, files.ErrNotFound)

		_, err = env.svc.ResolveLink(ctx, "unknown")
		assert.ErrorIs(t, err, files.ErrNotFound)

		_, err = env.svc.ResolveLink(ctx, "  ")
		assert.ErrorIs(t, err, files.ErrNotFound)
	})
}

func TestResolveLink_PrivateFilesResolve(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		rec := mustUpload(t, env, req("u1", "private.txt", "secret"))
		require.Equal(t, files.VisibilityPrivate, rec.Visibility)

		_, err := env.svc.ResolveLink(context.Background(), rec.LinkID)
		assert.NoError(t, err, "anyone holding the link may download")
	})
}

func TestOpenLink(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "a.txt", "payload"))

		d, body, err := env.svc.OpenLink(ctx, rec.LinkID)
		require.NoError(t, err)
		defer func() { _ = body.Close() }()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
		assert.Equal(t, int64(len(data)), d.Size)

		// A record whose object vanished reports not found.
		require.NoError(t, env.objects.Delete(ctx, rec.ObjectKey()))
		_, _, err = env.svc.OpenLink(ctx, rec.LinkID)
		assert.ErrorIs(t, err, files.ErrNotFound)
	})
}

func TestStat(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()
		rec := mustUpload(t, env, req("u1", "a.txt", "data"))

		got, err := env.svc.Stat(ctx, "u1", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)

		_, err = env.svc.Stat(ctx, "u2", rec.ID)
		assert.ErrorIs(t, err, files.ErrForbidden)

		pending := insertPending(t, env.meta, "u1", "pending.txt")
		_, err = env.svc.Stat(ctx, "u1", pending.ID)
		assert.ErrorIs(t, err, files.ErrNotFound)
	})
}
