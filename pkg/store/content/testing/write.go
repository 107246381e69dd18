package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// RunPutTests executes Put contract tests.
func (suite *StoreTestSuite) RunPutTests(t *testing.T) {
	t.Run("Put_UnknownSize", suite.testPutUnknownSize)
	t.Run("Put_Large", suite.testPutLarge)
	t.Run("Put_SizeMismatch", suite.testPutSizeMismatch)
	t.Run("Put_ReaderFailure", suite.testPutReaderFailure)
	t.Run("Put_Cancelled", suite.testPutCancelled)
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

func (suite *StoreTestSuite) testPutUnknownSize(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("unknown")
	data := []byte("streamed without a length")

	// io.MultiReader hides the length from the store
	n, err := store.Put(testContext(), key, io.MultiReader(bytes.NewReader(data)), content.UnknownSize, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, mustGet(t, store, key))
}

func (suite *StoreTestSuite) testPutLarge(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("large")
	data := randomBytes(t, 3*1024*1024+17)

	n, err := store.Put(testContext(), key, io.MultiReader(bytes.NewReader(data)), content.UnknownSize, "")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, mustGet(t, store, key))
}

func (suite *StoreTestSuite) testPutSizeMismatch(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("mismatch")

	_, err := store.Put(testContext(), key, bytesReader([]byte("short")), 100, "")
	assert.ErrorIs(t, err, content.ErrSizeMismatch)

	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.False(t, exists, "failed put must not leave an object")
}

func (suite *StoreTestSuite) testPutReaderFailure(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("broken")
	boom := errors.New("connection reset")

	_, err := store.Put(testContext(), key, &failingReader{data: []byte("partial"), err: boom}, content.UnknownSize, "")
	assert.ErrorIs(t, err, boom)

	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.False(t, exists, "failed put must not leave an object")
}

func (suite *StoreTestSuite) testPutCancelled(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, key, bytesReader([]byte("data")), 4, "")
	assert.ErrorIs(t, err, context.Canceled)

	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.False(t, exists)
}
