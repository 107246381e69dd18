package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// RunBasicTests executes Get, Exists and Delete contract tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("Get_Success", suite.testGetSuccess)
	t.Run("Get_Empty", suite.testGetEmpty)
	t.Run("Exists", suite.testExists)
	t.Run("Delete_Removes", suite.testDeleteRemoves)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
	t.Run("Keys_AreIndependent", suite.testKeysIndependent)
	t.Run("InvalidKey", suite.testInvalidKey)
}

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Get(testContext(), generateTestKey("missing"))
	assert.ErrorIs(t, err, content.ErrObjectNotFound)
}

func (suite *StoreTestSuite) testGetSuccess(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("get")
	data := []byte("Hello, World!")

	_, err := store.Put(testContext(), key, bytesReader(data), int64(len(data)), "text/plain")
	require.NoError(t, err)

	obj, err := store.Get(testContext(), key)
	require.NoError(t, err)
	defer func() { _ = obj.Body.Close() }()

	assert.Equal(t, int64(len(data)), obj.Size)
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, data, mustGet(t, store, key))
}

func (suite *StoreTestSuite) testGetEmpty(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("empty")

	mustPut(t, store, key, []byte{})

	assert.Empty(t, mustGet(t, store, key))
}

func (suite *StoreTestSuite) testExists(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("exists")

	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.False(t, exists)

	mustPut(t, store, key, []byte("x"))

	exists, err = store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testDeleteRemoves(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("delete")

	mustPut(t, store, key, []byte("to be deleted"))
	require.NoError(t, store.Delete(testContext(), key))

	_, err := store.Get(testContext(), key)
	assert.ErrorIs(t, err, content.ErrObjectNotFound)

	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("delete-twice")

	assert.NoError(t, store.Delete(testContext(), key))

	mustPut(t, store, key, []byte("x"))
	assert.NoError(t, store.Delete(testContext(), key))
	assert.NoError(t, store.Delete(testContext(), key))
}

func (suite *StoreTestSuite) testKeysIndependent(t *testing.T) {
	store := suite.NewStore()
	a := generateTestKey("owner-a")
	b := generateTestKey("owner-b")

	mustPut(t, store, a, []byte("alpha"))
	mustPut(t, store, b, []byte("beta"))
	require.NoError(t, store.Delete(testContext(), a))

	assert.Equal(t, []byte("beta"), mustGet(t, store, b))
}

func (suite *StoreTestSuite) testInvalidKey(t *testing.T) {
	store := suite.NewStore()

	for _, key := range []string{"", "/abs", "a/../b", "a//b"} {
		_, err := store.Put(testContext(), key, bytesReader([]byte("x")), 1, "")
		assert.ErrorIs(t, err, content.ErrInvalidKey, "key %q", key)
	}
}
