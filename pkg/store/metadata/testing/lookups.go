package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// RunLookupTests executes Find* and CountByContentHash contract tests.
func (suite *StoreTestSuite) RunLookupTests(t *testing.T) {
	t.Run("FindByID_NotFound", suite.testFindByIDNotFound)
	t.Run("FindByID_ReturnsCopy", suite.testFindByIDReturnsCopy)
	t.Run("FindByOwnerAndFilename", suite.testFindByOwnerAndFilename)
	t.Run("FindByOwnerAndFilename_SeesPending", suite.testFindByOwnerAndFilenameSeesPending)
	t.Run("FindByOwnerAndContentHash", suite.testFindByOwnerAndContentHash)
	t.Run("FindByOwnerAndContentHash_OtherOwner", suite.testFindByOwnerAndContentHashOtherOwner)
	t.Run("FindByLinkID", suite.testFindByLinkID)
	t.Run("FindByLinkID_HidesPending", suite.testFindByLinkIDHidesPending)
	t.Run("CountByContentHash", suite.testCountByContentHash)
	t.Run("Healthcheck", suite.testHealthcheck)
}

func (suite *StoreTestSuite) testFindByIDNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.FindByID(testContext(), metadata.NewRecordID())
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testFindByIDReturnsCopy(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("lookup")

	rec := pendingRecord(owner, "a.txt", baseTime)
	rec.Tags = []string{"one"}
	ready := mustReady(t, store, rec, "a")

	first, err := store.FindByID(testContext(), ready.ID)
	require.NoError(t, err)
	first.Filename = "mutated"
	first.Tags[0] = "mutated"

	second, err := store.FindByID(testContext(), ready.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", second.Filename)
	assert.Equal(t, []string{"one"}, second.Tags)
}

func (suite *StoreTestSuite) testFindByOwnerAndFilename(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("lookup")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")

	found, err := store.FindByOwnerAndFilename(testContext(), owner, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, ready.ID, found.ID)

	_, err = store.FindByOwnerAndFilename(testContext(), uniqueOwner("other"), "a.txt")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	_, err = store.FindByOwnerAndFilename(testContext(), owner, "A.TXT")
	assert.ErrorIs(t, err, metadata.ErrNotFound, "filenames are case-sensitive")
}

func (suite *StoreTestSuite) testFindByOwnerAndFilenameSeesPending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("lookup")

	pending := mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))

	found, err := store.FindByOwnerAndFilename(testContext(), owner, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)
	assert.Equal(t, files.StatusPending, found.Status)
}

func (suite *StoreTestSuite) testFindByOwnerAndContentHash(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("lookup")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "payload")

	found, err := store.FindByOwnerAndContentHash(testContext(), owner, hashOf("payload"))
	require.NoError(t, err)
	assert.Equal(t, ready.ID, found.ID)

	_, err = store.FindByOwnerAndContentHash(testContext(), owner, hashOf("other"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testFindByOwnerAndContentHashOtherOwner(t *testing.T) {
	store := suite.NewStore()

	mustReady(t, store, pendingRecord(uniqueOwner("a"), "a.txt", baseTime), "payload")

	_, err := store.FindByOwnerAndContentHash(testContext(), uniqueOwner("b"), hashOf("payload"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testFindByLinkID(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("lookup")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")

	found, err := store.FindByLinkID(testContext(), ready.LinkID)
	require.NoError(t, err)
	assert.Equal(t, ready.ID, found.ID)

	_, err = store.FindByLinkID(testContext(), "no-such-link")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testFindByLinkIDHidesPending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("lookup")

	pending := mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))

	_, err := store.FindByLinkID(testContext(), pending.LinkID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testCountByContentHash(t *testing.T) {
	store := suite.NewStore()
	hash := hashOf("counted-" + uniqueOwner("x"))

	count, err := store.CountByContentHash(testContext(), hash)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	for i := 0; i < 3; i++ {
		pending := mustInsert(t, store, pendingRecord(uniqueOwner("count"), "a.txt", baseTime))
		_, err := store.Finalize(testContext(), pending.ID, metadata.Finalization{
			Size: 1, ContentType: "text/plain", ContentHash: hash, At: baseTime,
		})
		require.NoError(t, err)
	}

	// Pending records do not count.
	mustInsert(t, store, pendingRecord(uniqueOwner("count"), "a.txt", baseTime))

	count, err = store.CountByContentHash(testContext(), hash)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func (suite *StoreTestSuite) testHealthcheck(t *testing.T) {
	store := suite.NewStore()
	assert.NoError(t, store.Healthcheck(testContext()))
}
