package testing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// RunMultipartTests executes MultipartObjectStore contract tests.
func (suite *StoreTestSuite) RunMultipartTests(t *testing.T) {
	t.Run("Multipart_Complete", suite.testMultipartComplete)
	t.Run("Multipart_Abort", suite.testMultipartAbort)
	t.Run("Multipart_AbortUnknown", suite.testMultipartAbortUnknown)
	t.Run("Multipart_UnknownSession", suite.testMultipartUnknownSession)
}

func (suite *StoreTestSuite) multipartStore(t *testing.T) content.MultipartObjectStore {
	mp, ok := suite.NewStore().(content.MultipartObjectStore)
	if !ok {
		t.Skip("Store does not implement MultipartObjectStore")
	}
	return mp
}

func (suite *StoreTestSuite) testMultipartComplete(t *testing.T) {
	store := suite.multipartStore(t)
	key := generateTestKey("multipart")
	ctx := testContext()

	partSize := int(store.PartSize())
	part1 := randomBytes(t, partSize)
	part2 := []byte("tail")

	uploadID, err := store.BeginMultipartUpload(ctx, key, "application/x-test")
	require.NoError(t, err)
	require.NotEmpty(t, uploadID)

	require.NoError(t, store.UploadPart(ctx, key, uploadID, 1, part1))
	require.NoError(t, store.UploadPart(ctx, key, uploadID, 2, part2))

	// Not visible before completion
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.CompleteMultipartUpload(ctx, key, uploadID))

	obj, err := store.Get(ctx, key)
	require.NoError(t, err)
	_ = obj.Body.Close()
	assert.Equal(t, "application/x-test", obj.ContentType)
	assert.Equal(t, bytes.Join([][]byte{part1, part2}, nil), mustGet(t, store, key))
}

func (suite *StoreTestSuite) testMultipartAbort(t *testing.T) {
	store := suite.multipartStore(t)
	key := generateTestKey("multipart-abort")
	ctx := testContext()

	uploadID, err := store.BeginMultipartUpload(ctx, key, "")
	require.NoError(t, err)
	require.NoError(t, store.UploadPart(ctx, key, uploadID, 1, randomBytes(t, int(store.PartSize()))))
	require.NoError(t, store.AbortMultipartUpload(ctx, key, uploadID))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// Aborting twice is harmless
	assert.NoError(t, store.AbortMultipartUpload(ctx, key, uploadID))
}

func (suite *StoreTestSuite) testMultipartAbortUnknown(t *testing.T) {
	store := suite.multipartStore(t)
	assert.NoError(t, store.AbortMultipartUpload(testContext(), generateTestKey("nobody"), "does-not-exist"))
}

func (suite *StoreTestSuite) testMultipartUnknownSession(t *testing.T) {
	store := suite.multipartStore(t)
	key := generateTestKey("nobody")

	err := store.UploadPart(testContext(), key, "does-not-exist", 1, []byte("x"))
	assert.ErrorIs(t, err, content.ErrUploadNotFound)

	err = store.CompleteMultipartUpload(testContext(), key, "does-not-exist")
	assert.ErrorIs(t, err, content.ErrUploadNotFound)
}
