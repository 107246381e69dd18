package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/digest"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/content"
	"github.com/marmos91/dittofiles/pkg/store/content/memory"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
	metamemory "github.com/marmos91/dittofiles/pkg/store/metadata/memory"
)

// assertNoResidue checks that a failed upload left neither a record nor an
// object behind.
func assertNoResidue(t *testing.T, meta metadata.Store, objects *memory.MemoryObjectStore, owner, filename string) {
	t.Helper()
	_, err := meta.FindByOwnerAndFilename(context.Background(), owner, filename)
	assert.ErrorIs(t, err, metadata.ErrNotFound, "pending record must be rolled back")
	assert.Equal(t, 0, objects.Len(), "object must be rolled back")
	assert.Equal(t, 0, objects.PendingUploads(), "multipart sessions must be aborted")
}

func TestUpload_Success(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		rec := mustUpload(t, env, req("u1", "  hello.txt ", "hello world", "Demo", "demo", " Work ", ""))

		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "u1", rec.OwnerID)
		assert.Equal(t, "hello.txt", rec.Filename)
		assert.Equal(t, files.VisibilityPrivate, rec.Visibility)
		assert.Equal(t, []string{"demo", "work"}, rec.Tags)
		assert.Equal(t, int64(11), rec.Size)
		assert.Equal(t, digest.Sum256([]byte("hello world")), rec.ContentHash)
		assert.True(t, strings.HasPrefix(rec.ContentType, "text/plain"), "detected %q", rec.ContentType)
		assert.Len(t, rec.LinkID, 43)
		assert.Equal(t, "u1/"+rec.ID, rec.ObjectKey())
		assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))

		assert.Equal(t, []byte("hello world"), readAll(t, env.objects, rec))
		assert.Equal(t, OutcomeSuccess, env.metrics.lastOutcome())
		assert.Empty(t, env.metrics.compensationSteps())

		stored, err := env.meta.FindByID(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, files.StatusReady, stored.Status)
	})
}

func TestUpload_ContentType(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		declared := req("u1", "custom.bin", "payload")
		declared.ContentType = "  application/x-custom "
		rec := mustUpload(t, env, declared)
		assert.Equal(t, "application/x-custom", rec.ContentType)

		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		detected := UploadRequest{
			OwnerID: "u1", Filename: "image", Visibility: files.VisibilityPrivate,
			Size: int64(len(png)), Body: bytes.NewReader(png),
		}
		rec = mustUpload(t, env, detected)
		assert.Equal(t, "image/png", rec.ContentType)

		rec = mustUpload(t, env, req("u1", "empty", ""))
		assert.Equal(t, files.DefaultContentType, rec.ContentType)
		assert.Equal(t, int64(0), rec.Size)
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", rec.ContentHash)
	})
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *UploadRequest)
	}{
		{"blank owner", func(r *UploadRequest) { r.OwnerID = "  " }},
		{"blank filename", func(r *UploadRequest) { r.Filename = " " }},
		{"filename with slash", func(r *UploadRequest) { r.Filename = "a/b.txt" }},
		{"filename too long", func(r *UploadRequest) { r.Filename = strings.Repeat("x", 256) }},
		{"missing visibility", func(r *UploadRequest) { r.Visibility = "" }},
		{"unknown visibility", func(r *UploadRequest) { r.Visibility = "SECRET" }},
		{"nil body", func(r *UploadRequest) { r.Body = nil }},
		{"negative size", func(r *UploadRequest) { r.Size = -2 }},
		{"tag too long", func(r *UploadRequest) { r.Tags = []string{strings.Repeat("t", 65)} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{})
			r := req("u1", "a.txt", "data")
			tt.mutate(&r)

			_, err := env.svc.Upload(context.Background(), r)
			require.Error(t, err)
			assert.ErrorIs(t, err, files.ErrValidation)
			assert.Equal(t, OutcomeValidation, env.metrics.lastOutcome())
			assert.Equal(t, 0, env.objects.Len())

			page, err := env.meta.List(context.Background(), files.ListQuery{
				Scope: files.OwnedBy("u1"), Sort: files.SortByCreatedAt, Dir: files.SortAsc, Size: 10,
			})
			require.NoError(t, err)
			assert.Equal(t, 0, page.Total)
		})
	}
}

func TestUpload_FilenameConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		first := mustUpload(t, env, req("u1", "a.txt", "first"))

		// The body must not be read once the reservation fails.
		second := req("u1", "a.txt", "")
		second.Size = content.UnknownSize
		second.Body = &failingReader{err: errors.New("body must not be read")}

		_, err := env.svc.Upload(context.Background(), second)
		assert.ErrorIs(t, err, files.ErrFilenameConflict)
		assert.Equal(t, OutcomeFilenameConflict, env.metrics.lastOutcome())
		assert.Equal(t, 1, env.objects.Len())

		// Different content does not matter either.
		_, err = env.svc.Upload(context.Background(), req("u1", "a.txt", "other"))
		assert.ErrorIs(t, err, files.ErrFilenameConflict)

		stored, err := env.meta.FindByOwnerAndFilename(context.Background(), "u1", "a.txt")
		require.NoError(t, err)
		assert.Equal(t, first.ID, stored.ID)
	})
}

func TestUpload_FilenameHeldByPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		linkID, err := files.NewLinkID()
		require.NoError(t, err)
		_, err = env.meta.InsertPending(context.Background(), files.FileRecord{
			OwnerID: "u1", Filename: "busy.txt", Visibility: files.VisibilityPrivate, LinkID: linkID,
		})
		require.NoError(t, err)

		_, err = env.svc.Upload(context.Background(), req("u1", "busy.txt", "data"))
		assert.ErrorIs(t, err, files.ErrFilenameConflict)
	})
}

func TestUpload_ContentConflictSameOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		first := mustUpload(t, env, req("u1", "a.txt", "A"))

		_, err := env.svc.Upload(context.Background(), req("u1", "b.txt", "A"))
		assert.ErrorIs(t, err, files.ErrContentConflict)
		assert.Equal(t, OutcomeContentConflict, env.metrics.lastOutcome())

		_, err = env.meta.FindByOwnerAndFilename(context.Background(), "u1", "b.txt")
		assert.ErrorIs(t, err, metadata.ErrNotFound)
		assert.Equal(t, 1, env.objects.Len(), "no duplicate object may remain")

		exists, err := env.objects.Exists(context.Background(), first.ObjectKey())
		require.NoError(t, err)
		assert.True(t, exists)

		assert.Equal(t, []string{"delete_object", "delete_record"}, env.metrics.compensationSteps())
	})
}

func TestUpload_SameContentAcrossOwners(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		a := mustUpload(t, env, req("u1", "a.txt", "shared"))
		b := mustUpload(t, env, req("u2", "a.txt", "shared"))

		assert.Equal(t, a.ContentHash, b.ContentHash)
		assert.NotEqual(t, a.ID, b.ID)
		assert.NotEqual(t, a.ObjectKey(), b.ObjectKey())
		assert.NotEqual(t, a.LinkID, b.LinkID)
		assert.Equal(t, 2, env.objects.Len())

		count, err := env.meta.CountByContentHash(context.Background(), a.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestUpload_ContentConflictAtFinalize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		mustUpload(t, env, req("u1", "a.txt", "A"))

		// Skip the precheck so the store's own constraint has to catch it,
		// as it would when two uploads race.
		faulty := &faultyMetadataStore{
			Store: env.meta,
			hashLookup: func(ctx context.Context, owner, hash string) (*files.FileRecord, error) {
				return nil, metadata.ErrNotFound
			},
		}
		svc := New(faulty, env.objects, Config{}, nil)

		_, err := svc.Upload(context.Background(), req("u1", "b.txt", "A"))
		assert.ErrorIs(t, err, files.ErrContentConflict)

		_, err = env.meta.FindByOwnerAndFilename(context.Background(), "u1", "b.txt")
		assert.ErrorIs(t, err, metadata.ErrNotFound)
		assert.Equal(t, 1, env.objects.Len())
	})
}

func TestUpload_FinalizeFailureRollsBack(t *testing.T) {
	meta := metamemory.NewMemoryMetadataStore()
	objects := memory.NewMemoryObjectStore()
	svc := New(&faultyMetadataStore{Store: meta, finalizeErr: errInjected}, objects, Config{}, nil)

	_, err := svc.Upload(context.Background(), req("u1", "a.txt", "data"))
	assert.ErrorIs(t, err, files.ErrTransient)
	assert.ErrorIs(t, err, errInjected)
	assertNoResidue(t, meta, objects, "u1", "a.txt")
}

func TestUpload_HashLookupFailureRollsBack(t *testing.T) {
	meta := metamemory.NewMemoryMetadataStore()
	objects := memory.NewMemoryObjectStore()
	faulty := &faultyMetadataStore{
		Store: meta,
		hashLookup: func(ctx context.Context, owner, hash string) (*files.FileRecord, error) {
			return nil, errInjected
		},
	}
	svc := New(faulty, objects, Config{}, nil)

	_, err := svc.Upload(context.Background(), req("u1", "a.txt", "data"))
	assert.ErrorIs(t, err, files.ErrTransient)
	assertNoResidue(t, meta, objects, "u1", "a.txt")
}

func TestUpload_ObjectStoreFailureRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		faulty := &faultyObjectStore{ObjectStore: env.objects, putErr: errInjected}
		svc := New(env.meta, faulty, Config{}, env.metrics)

		_, err := svc.Upload(context.Background(), req("u1", "a.txt", "data"))
		assert.ErrorIs(t, err, files.ErrTransient)
		assert.ErrorIs(t, err, errInjected)
		assert.Equal(t, OutcomeTransient, env.metrics.lastOutcome())
		assertNoResidue(t, env.meta, env.objects, "u1", "a.txt")

		// The filename is free again.
		mustUpload(t, env, req("u1", "a.txt", "data"))
	})
}

func TestUpload_ReaderFailureMidStream(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		svc := New(env.meta, env.objects, Config{ChunkSize: 10}, nil)

		body := &failingReader{data: bytes.Repeat([]byte("x"), 100), err: errInjected}
		r := req("u1", "broken.bin", "")
		r.Size = 200
		r.Body = body

		_, err := svc.Upload(context.Background(), r)
		assert.ErrorIs(t, err, files.ErrTransient)
		assert.ErrorIs(t, err, errInjected)
		assertNoResidue(t, env.meta, env.objects, "u1", "broken.bin")
	})
}

func TestUpload_CompensationFailureKeepsPrimaryError(t *testing.T) {
	meta := metamemory.NewMemoryMetadataStore()
	objects := memory.NewMemoryObjectStore()
	faulty := &faultyObjectStore{ObjectStore: objects, putErr: errInjected, deleteErr: errors.New("delete failed")}
	m := &recordingMetrics{}
	svc := New(meta, faulty, Config{}, m)

	_, err := svc.Upload(context.Background(), req("u1", "a.txt", "data"))
	assert.ErrorIs(t, err, errInjected)
	assert.NotContains(t, err.Error(), "delete failed")

	_, err = meta.FindByOwnerAndFilename(context.Background(), "u1", "a.txt")
	assert.ErrorIs(t, err, metadata.ErrNotFound, "record rollback must still run")
	assert.Equal(t, []string{"delete_object", "delete_record"}, m.compensationSteps())
}

func TestUpload_CancellationRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		svc := New(env.meta, env.objects, Config{ChunkSize: 4}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		r := req("u1", "slow.bin", "")
		r.Size = 100
		r.Body = &blockingReader{ctx: ctx, data: []byte("0123456789")}

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := svc.Upload(ctx, r)
		require.Error(t, err)
		assert.ErrorIs(t, err, files.ErrTransient)
		assert.ErrorIs(t, err, context.Canceled)
		assertNoResidue(t, env.meta, env.objects, "u1", "slow.bin")
	})
}

func TestUpload_DeclaredSizeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		declared int64
	}{
		{"shorter than declared", "hello", 10},
		{"longer than declared", "hello", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{})
			r := req("u1", "a.txt", tt.body)
			r.Size = tt.declared

			_, err := env.svc.Upload(context.Background(), r)
			assert.ErrorIs(t, err, files.ErrValidation)
			assertNoResidue(t, env.meta, env.objects, "u1", "a.txt")
		})
	}
}

func TestUpload_HugeDeclaredSizeWithoutLimit(t *testing.T) {
	for _, declared := range []int64{1 << 50, math.MaxInt64} {
		t.Run(strconv.FormatInt(declared, 10), func(t *testing.T) {
			env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{MaxUploadSize: -1})
			r := req("u1", "tiny.bin", "A")
			r.Size = declared

			_, err := env.svc.Upload(context.Background(), r)
			assert.ErrorIs(t, err, files.ErrValidation)
			assertNoResidue(t, env.meta, env.objects, "u1", "tiny.bin")
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	t.Run("declared", func(t *testing.T) {
		env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{MaxUploadSize: 4})

		_, err := env.svc.Upload(context.Background(), req("u1", "big.bin", "hello"))
		assert.ErrorIs(t, err, files.ErrTooLarge)
		assert.Equal(t, OutcomeTooLarge, env.metrics.lastOutcome())
		assertNoResidue(t, env.meta, env.objects, "u1", "big.bin")
	})

	t.Run("streamed in first chunk", func(t *testing.T) {
		env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{MaxUploadSize: 4})
		r := req("u1", "big.bin", "0123456789")
		r.Size = content.UnknownSize

		_, err := env.svc.Upload(context.Background(), r)
		assert.ErrorIs(t, err, files.ErrTooLarge)
		assertNoResidue(t, env.meta, env.objects, "u1", "big.bin")
	})

	t.Run("streamed in multipart", func(t *testing.T) {
		env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{MaxUploadSize: 4, ChunkSize: 2}, memory.WithPartSize(2))
		r := req("u1", "big.bin", "0123456789")
		r.Size = content.UnknownSize

		_, err := env.svc.Upload(context.Background(), r)
		assert.ErrorIs(t, err, files.ErrTooLarge)
		assertNoResidue(t, env.meta, env.objects, "u1", "big.bin")
		assert.Contains(t, env.metrics.compensationSteps(), "abort_multipart")
	})

	t.Run("exactly at limit", func(t *testing.T) {
		env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{MaxUploadSize: 4})
		r := req("u1", "ok.bin", "0123")
		r.Size = content.UnknownSize

		rec := mustUpload(t, env, r)
		assert.Equal(t, int64(4), rec.Size)
	})
}

func TestUpload_UnknownSize(t *testing.T) {
	body := "0123456789"

	t.Run("multipart", func(t *testing.T) {
		env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{ChunkSize: 4}, memory.WithPartSize(4))
		r := req("u1", "parts.bin", body)
		r.Size = content.UnknownSize

		rec := mustUpload(t, env, r)
		assert.Equal(t, int64(len(body)), rec.Size)
		assert.Equal(t, digest.Sum256([]byte(body)), rec.ContentHash)
		assert.Equal(t, []byte(body), readAll(t, env.objects, rec))
		assert.Equal(t, 0, env.objects.PendingUploads())
	})

	t.Run("fits in first chunk", func(t *testing.T) {
		env := newEnv(t, metamemory.NewMemoryMetadataStore(), Config{})
		r := req("u1", "small.bin", body)
		r.Size = content.UnknownSize

		rec := mustUpload(t, env, r)
		assert.Equal(t, []byte(body), readAll(t, env.objects, rec))
	})

	t.Run("store without multipart", func(t *testing.T) {
		meta := metamemory.NewMemoryMetadataStore()
		objects := memory.NewMemoryObjectStore()
		svc := New(meta, &faultyObjectStore{ObjectStore: objects}, Config{ChunkSize: 4}, nil)

		r := req("u1", "plain.bin", body)
		r.Size = content.UnknownSize

		rec, err := svc.Upload(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, int64(len(body)), rec.Size)
		assert.Equal(t, []byte(body), readAll(t, objects, rec))
	})
}

func TestUpload_ConcurrentSameFilename(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		const writers = 8

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.svc.Upload(context.Background(), req("u1", "race.txt", fmt.Sprintf("body-%d", i)))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, files.ErrFilenameConflict)
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, env.objects.Len())
	})
}

func TestUpload_ConcurrentSameContent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, env *testEnv) {
		const writers = 8

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.svc.Upload(context.Background(), req("u1", fmt.Sprintf("copy-%d.txt", i), "identical"))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, files.ErrContentConflict)
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, env.objects.Len())

		page, err := env.svc.ListOwned(context.Background(), "u1", files.RawQuery{})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
	})
}
