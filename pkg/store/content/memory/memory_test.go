package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/store/content"
	contenttesting "github.com/marmos91/dittofiles/pkg/store/content/testing"
)

func TestMemoryObjectStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.ObjectStore {
			return NewMemoryObjectStore()
		},
	}
	suite.Run(t)
}

func TestMemoryObjectStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryObjectStore()

	data := []byte("original")
	_, err := store.Put(ctx, "u1/a", bytes.NewReader(data), int64(len(data)), "")
	require.NoError(t, err)

	obj, err := store.Get(ctx, "u1/a")
	require.NoError(t, err)
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	got[0] = 'X'

	obj, err = store.Get(ctx, "u1/a")
	require.NoError(t, err)
	again, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestMemoryObjectStore_PartOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryObjectStore(WithPartSize(4))
	assert.Equal(t, int64(4), store.PartSize())

	uploadID, err := store.BeginMultipartUpload(ctx, "u1/a", "")
	require.NoError(t, err)
	assert.Equal(t, 1, store.PendingUploads())

	assert.Error(t, store.UploadPart(ctx, "u1/a", uploadID, 2, []byte("late")))
	assert.ErrorIs(t, store.UploadPart(ctx, "u1/b", uploadID, 1, []byte("key")), content.ErrUploadNotFound)

	require.NoError(t, store.AbortMultipartUpload(ctx, "u1/a", uploadID))
	assert.Equal(t, 0, store.PendingUploads())
	assert.Equal(t, 0, store.Len())
}

func TestMemoryObjectStore_HugeDeclaredSize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryObjectStore()

	for _, declared := range []int64{5 << 30, 1 << 50} {
		n, err := store.Put(ctx, "u1/a", bytes.NewReader([]byte("A")), declared, "")
		assert.ErrorIs(t, err, content.ErrSizeMismatch)
		assert.Equal(t, int64(1), n)
	}
	assert.Equal(t, 0, store.Len())
}
