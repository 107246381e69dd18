package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// RunGCTests executes GarbageCollectableStore contract tests.
func (suite *StoreTestSuite) RunGCTests(t *testing.T) {
	t.Run("ListAllObjects_Empty", suite.testListAllObjectsEmpty)
	t.Run("ListAllObjects_Multiple", suite.testListAllObjectsMultiple)
	t.Run("DeleteBatch_Empty", suite.testDeleteBatchEmpty)
	t.Run("DeleteBatch_Multiple", suite.testDeleteBatchMultiple)
	t.Run("DeleteBatch_MissingKeys", suite.testDeleteBatchMissingKeys)
}

// gcStore returns a fresh store and its GC capability, or skips.
func (suite *StoreTestSuite) gcStore(t *testing.T) (content.ObjectStore, content.GarbageCollectableStore) {
	store := suite.NewStore()
	gc, ok := store.(content.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}
	return store, gc
}

func (suite *StoreTestSuite) testListAllObjectsEmpty(t *testing.T) {
	_, gc := suite.gcStore(t)

	keys, err := gc.ListAllObjects(testContext())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func (suite *StoreTestSuite) testListAllObjectsMultiple(t *testing.T) {
	store, gc := suite.gcStore(t)

	want := []string{
		generateTestKey("u1"),
		generateTestKey("u1"),
		generateTestKey("u2"),
	}
	for _, key := range want {
		mustPut(t, store, key, []byte(key))
	}

	keys, err := gc.ListAllObjects(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, want, keys)
}

func (suite *StoreTestSuite) testDeleteBatchEmpty(t *testing.T) {
	_, gc := suite.gcStore(t)

	failures, err := gc.DeleteBatch(testContext(), nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func (suite *StoreTestSuite) testDeleteBatchMultiple(t *testing.T) {
	store, gc := suite.gcStore(t)

	keep := generateTestKey("keep")
	drop := []string{generateTestKey("drop"), generateTestKey("drop")}
	mustPut(t, store, keep, []byte("keep"))
	for _, key := range drop {
		mustPut(t, store, key, []byte("drop"))
	}

	failures, err := gc.DeleteBatch(testContext(), drop)
	require.NoError(t, err)
	assert.Empty(t, failures)

	keys, err := gc.ListAllObjects(testContext())
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, keys)
}

func (suite *StoreTestSuite) testDeleteBatchMissingKeys(t *testing.T) {
	_, gc := suite.gcStore(t)

	failures, err := gc.DeleteBatch(testContext(), []string{generateTestKey("ghost")})
	require.NoError(t, err)
	assert.Empty(t, failures, "deleting missing keys is not a failure")
}
