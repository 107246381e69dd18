package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
)

func filenames(page files.Page) []string {
	out := make([]string, len(page.Items))
	for i, r := range page.Items {
		out[i] = r.Filename
	}
	return out
}

func TestListOwned_DefaultsToNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		for i := 0; i < 3; i++ {
			mustUpload(t, env, req("u1", fmt.Sprintf("f%d.txt", i), fmt.Sprintf("body-%d", i)))
		}
		mustUpload(t, env, req("u2", "other.txt", "other"))
		insertPending(t, env.meta, "u1", "pending.txt")

		page, err := env.svc.ListOwned(context.Background(), "u1", files.RawQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"f2.txt", "f1.txt", "f0.txt"}, filenames(page))
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 0, page.Page)
		assert.Equal(t, files.DefaultPageSize, page.Size)
	})
}

func TestListPublic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustUpload(t, env, publicReq("u1", "pub1.txt", "1", "Demo"))
		mustUpload(t, env, req("u1", "private.txt", "2", "demo"))
		mustUpload(t, env, publicReq("u2", "pub2.txt", "3"))

		page, err := env.svc.ListPublic(context.Background(), files.RawQuery{Sort: "filename", Dir: "asc"})
		require.NoError(t, err)
		assert.Equal(t, []string{"pub1.txt", "pub2.txt"}, filenames(page))

		page, err = env.svc.ListPublic(context.Background(), files.RawQuery{Tag: " DEMO "})
		require.NoError(t, err)
		assert.Equal(t, []string{"pub1.txt"}, filenames(page))
	})
}

func TestList_FilenameSearch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustUpload(t, env, req("u1", "Quarterly-Report.pdf", "1"))
		mustUpload(t, env, req("u1", "notes.txt", "2"))

		page, err := env.svc.ListOwned(context.Background(), "u1", files.RawQuery{Q: "report"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Quarterly-Report.pdf"}, filenames(page))
	})
}

func TestList_PaginationIsDeterministic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		for i := 0; i < 5; i++ {
			mustUpload(t, env, req("u1", fmt.Sprintf("f%d.txt", i), fmt.Sprintf("body-%d", i)))
		}

		raw := files.RawQuery{Sort: "size", Dir: "asc", Page: "1", Size: "2"}
		first, err := env.svc.ListOwned(context.Background(), "u1", raw)
		require.NoError(t, err)
		second, err := env.svc.ListOwned(context.Background(), "u1", raw)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first.Items, 2)
		assert.Equal(t, 5, first.Total)

		beyond, err := env.svc.ListOwned(context.Background(), "u1", files.RawQuery{Page: "10", Size: "2"})
		require.NoError(t, err)
		assert.NotNil(t, beyond.Items)
		assert.Empty(t, beyond.Items)
	})
}

func TestList_InvalidQuery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		_, err := env.svc.ListOwned(context.Background(), "u1", files.RawQuery{Sort: "owner"})
		assert.ErrorIs(t, err, files.ErrValidation)

		_, err = env.svc.ListPublic(context.Background(), files.RawQuery{Dir: "sideways"})
		assert.ErrorIs(t, err, files.ErrValidation)

		_, err = env.svc.ListOwned(context.Background(), " ", files.RawQuery{})
		assert.ErrorIs(t, err, files.ErrValidation)
	})
}

func TestList_ClampsPageSize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		page, err := env.svc.ListOwned(context.Background(), "u1", files.RawQuery{Size: "1000"})
		require.NoError(t, err)
		assert.Equal(t, files.MaxPageSize, page.Size)
	})
}

// TestScenario walks through the end-to-end example: two owners, one piece
// of content, rename and delete.
func TestScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		ctx := context.Background()

		a, err := env.svc.Upload(ctx, publicReq("u1", "a.txt", "A", "Demo"))
		require.NoError(t, err)

		for _, tag := range []string{"demo", "DEMO", "Demo"} {
			page, err := env.svc.ListPublic(ctx, files.RawQuery{Tag: tag})
			require.NoError(t, err)
			require.Len(t, page.Items, 1, "tag %q", tag)
			assert.Equal(t, "a.txt", page.Items[0].Filename)
		}

		_, err = env.svc.Upload(ctx, publicReq("u1", "b.txt", "A"))
		assert.ErrorIs(t, err, files.ErrContentConflict)

		u2a, err := env.svc.Upload(ctx, publicReq("u2", "a.txt", "A"))
		require.NoError(t, err)
		assert.Equal(t, a.ContentHash, u2a.ContentHash)

		renamed, err := env.svc.Rename(ctx, "u1", a.ID, "a2.txt")
		require.NoError(t, err)
		assert.Equal(t, "a2.txt", renamed.Filename)

		u2renamed, err := env.svc.Rename(ctx, "u2", u2a.ID, "a2.txt")
		require.NoError(t, err)
		assert.Equal(t, "a2.txt", u2renamed.Filename)

		deleted, err := env.svc.Delete(ctx, "u1", a.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = env.svc.ResolveLink(ctx, a.LinkID)
		assert.ErrorIs(t, err, files.ErrNotFound)

		_, err = env.svc.ResolveLink(ctx, u2a.LinkID)
		assert.NoError(t, err, "the other owner's copy is untouched")
	})
}
