package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// RunMutationTests executes InsertPending, Finalize, Rename and Delete
// contract tests.
func (suite *StoreTestSuite) RunMutationTests(t *testing.T) {
	t.Run("InsertPending_AssignsID", suite.testInsertAssignsID)
	t.Run("InsertPending_ForcesPending", suite.testInsertForcesPending)
	t.Run("InsertPending_FilenameTaken", suite.testInsertFilenameTaken)
	t.Run("InsertPending_FilenameTakenByPending", suite.testInsertFilenameTakenByPending)
	t.Run("InsertPending_SameFilenameOtherOwner", suite.testInsertSameFilenameOtherOwner)
	t.Run("InsertPending_RequiresFields", suite.testInsertRequiresFields)
	t.Run("Finalize_SetsContent", suite.testFinalizeSetsContent)
	t.Run("Finalize_ContentTaken", suite.testFinalizeContentTaken)
	t.Run("Finalize_SameContentOtherOwner", suite.testFinalizeSameContentOtherOwner)
	t.Run("Finalize_NotPending", suite.testFinalizeNotPending)
	t.Run("Finalize_NotFound", suite.testFinalizeNotFound)
	t.Run("Rename_Success", suite.testRenameSuccess)
	t.Run("Rename_SameName", suite.testRenameSameName)
	t.Run("Rename_FilenameTaken", suite.testRenameFilenameTaken)
	t.Run("Rename_FreesOldName", suite.testRenameFreesOldName)
	t.Run("Rename_NotFound", suite.testRenameNotFound)
	t.Run("Delete_ByOwner", suite.testDeleteByOwner)
	t.Run("Delete_WrongOwner", suite.testDeleteWrongOwner)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("Delete_FreesIndexes", suite.testDeleteFreesIndexes)
	t.Run("DeletePending_RemovesReservation", suite.testDeletePendingRemovesReservation)
	t.Run("DeletePending_KeepsReady", suite.testDeletePendingKeepsReady)
	t.Run("DeletePending_WrongOwner", suite.testDeletePendingWrongOwner)
}

func (suite *StoreTestSuite) testInsertAssignsID(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("insert")

	a := mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))
	b := mustInsert(t, store, pendingRecord(owner, "b.txt", baseTime))

	assert.NotEqual(t, a.ID, b.ID)
}

func (suite *StoreTestSuite) testInsertForcesPending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("insert")

	rec := pendingRecord(owner, "a.txt", baseTime)
	rec.Status = files.StatusReady
	rec.ContentHash = hashOf("x")
	rec.Tags = []string{"alpha", "beta"}
	rec.Visibility = files.VisibilityPublic

	out := mustInsert(t, store, rec)
	assert.Equal(t, files.StatusPending, out.Status)
	assert.Empty(t, out.ContentHash)

	stored, err := store.FindByID(testContext(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, files.StatusPending, stored.Status)
	assert.Equal(t, owner, stored.OwnerID)
	assert.Equal(t, "a.txt", stored.Filename)
	assert.Equal(t, files.VisibilityPublic, stored.Visibility)
	assert.Equal(t, []string{"alpha", "beta"}, stored.Tags)
	assert.Equal(t, rec.LinkID, stored.LinkID)
	assert.True(t, baseTime.Equal(stored.CreatedAt))
}

func (suite *StoreTestSuite) testInsertFilenameTaken(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("insert")

	mustReady(t, store, pendingRecord(owner, "dup.txt", baseTime), "first")

	_, err := store.InsertPending(testContext(), pendingRecord(owner, "dup.txt", baseTime))
	assert.ErrorIs(t, err, metadata.ErrFilenameTaken)
}

func (suite *StoreTestSuite) testInsertFilenameTakenByPending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("insert")

	mustInsert(t, store, pendingRecord(owner, "dup.txt", baseTime))

	_, err := store.InsertPending(testContext(), pendingRecord(owner, "dup.txt", baseTime))
	assert.ErrorIs(t, err, metadata.ErrFilenameTaken)
}

func (suite *StoreTestSuite) testInsertSameFilenameOtherOwner(t *testing.T) {
	store := suite.NewStore()

	mustInsert(t, store, pendingRecord(uniqueOwner("a"), "same.txt", baseTime))
	mustInsert(t, store, pendingRecord(uniqueOwner("b"), "same.txt", baseTime))
}

func (suite *StoreTestSuite) testInsertRequiresFields(t *testing.T) {
	store := suite.NewStore()

	rec := pendingRecord("", "a.txt", baseTime)
	_, err := store.InsertPending(testContext(), rec)
	assert.Error(t, err)

	rec = pendingRecord(uniqueOwner("insert"), "a.txt", baseTime)
	rec.LinkID = ""
	_, err = store.InsertPending(testContext(), rec)
	assert.Error(t, err)
}

func (suite *StoreTestSuite) testFinalizeSetsContent(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("finalize")
	later := baseTime.Add(time.Minute)

	pending := mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))
	ready := mustFinalize(t, store, pending.ID, "hello", later)

	assert.Equal(t, files.StatusReady, ready.Status)
	assert.Equal(t, int64(5), ready.Size)
	assert.Equal(t, "text/plain", ready.ContentType)
	assert.Equal(t, hashOf("hello"), ready.ContentHash)
	assert.True(t, later.Equal(ready.UpdatedAt))

	stored, err := store.FindByID(testContext(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, files.StatusReady, stored.Status)
	assert.Equal(t, hashOf("hello"), stored.ContentHash)
	assert.True(t, baseTime.Equal(stored.CreatedAt))
}

func (suite *StoreTestSuite) testFinalizeContentTaken(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("finalize")

	mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "same")
	second := mustInsert(t, store, pendingRecord(owner, "b.txt", baseTime))

	_, err := store.Finalize(testContext(), second.ID, metadata.Finalization{
		Size: 4, ContentType: "text/plain", ContentHash: hashOf("same"), At: baseTime,
	})
	assert.ErrorIs(t, err, metadata.ErrContentTaken)

	stored, err := store.FindByID(testContext(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, files.StatusPending, stored.Status, "a rejected finalize must leave the record pending")
}

func (suite *StoreTestSuite) testFinalizeSameContentOtherOwner(t *testing.T) {
	store := suite.NewStore()

	mustReady(t, store, pendingRecord(uniqueOwner("a"), "a.txt", baseTime), "shared")
	mustReady(t, store, pendingRecord(uniqueOwner("b"), "a.txt", baseTime), "shared")

	count, err := store.CountByContentHash(testContext(), hashOf("shared"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func (suite *StoreTestSuite) testFinalizeNotPending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("finalize")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "one")

	_, err := store.Finalize(testContext(), ready.ID, metadata.Finalization{
		Size: 3, ContentType: "text/plain", ContentHash: hashOf("two"), At: baseTime,
	})
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testFinalizeNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Finalize(testContext(), metadata.NewRecordID(), metadata.Finalization{
		ContentHash: hashOf("x"), At: baseTime,
	})
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testRenameSuccess(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("rename")
	later := baseTime.Add(time.Hour)

	ready := mustReady(t, store, pendingRecord(owner, "old.txt", baseTime), "body")

	renamed, err := store.Rename(testContext(), ready.ID, "new.txt", later)
	require.NoError(t, err)
	assert.Equal(t, "new.txt", renamed.Filename)
	assert.True(t, later.Equal(renamed.UpdatedAt))

	found, err := store.FindByOwnerAndFilename(testContext(), owner, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, ready.ID, found.ID)
	assert.Equal(t, hashOf("body"), found.ContentHash, "rename must not touch content")

	_, err = store.FindByOwnerAndFilename(testContext(), owner, "old.txt")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testRenameSameName(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("rename")

	ready := mustReady(t, store, pendingRecord(owner, "same.txt", baseTime), "body")

	renamed, err := store.Rename(testContext(), ready.ID, "same.txt", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "same.txt", renamed.Filename)
}

func (suite *StoreTestSuite) testRenameFilenameTaken(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("rename")

	mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")
	b := mustReady(t, store, pendingRecord(owner, "b.txt", baseTime), "b")

	_, err := store.Rename(testContext(), b.ID, "a.txt", baseTime)
	assert.ErrorIs(t, err, metadata.ErrFilenameTaken)

	stored, err := store.FindByID(testContext(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", stored.Filename)
}

func (suite *StoreTestSuite) testRenameFreesOldName(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("rename")

	a := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")
	_, err := store.Rename(testContext(), a.ID, "z.txt", baseTime)
	require.NoError(t, err)

	mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))
}

func (suite *StoreTestSuite) testRenameNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Rename(testContext(), metadata.NewRecordID(), "x.txt", baseTime)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testDeleteByOwner(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("delete")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")

	deleted, err := store.DeleteByIDAndOwner(testContext(), ready.ID, owner)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.FindByID(testContext(), ready.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testDeleteWrongOwner(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("delete")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")

	deleted, err := store.DeleteByIDAndOwner(testContext(), ready.ID, uniqueOwner("intruder"))
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.FindByID(testContext(), ready.ID)
	assert.NoError(t, err)
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	store := suite.NewStore()

	deleted, err := store.DeleteByIDAndOwner(testContext(), metadata.NewRecordID(), uniqueOwner("delete"))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func (suite *StoreTestSuite) testDeleteFreesIndexes(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("delete")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "content")
	deleted, err := store.DeleteByIDAndOwner(testContext(), ready.ID, owner)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = store.FindByOwnerAndContentHash(testContext(), owner, hashOf("content"))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	_, err = store.FindByLinkID(testContext(), ready.LinkID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	// Both the filename and the content are free again.
	mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "content")
}

func (suite *StoreTestSuite) testDeletePendingRemovesReservation(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("reap")

	pending := mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))

	deleted, err := store.DeletePending(testContext(), pending.ID, owner)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.FindByID(testContext(), pending.ID)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	// The reserved filename is free again.
	mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))
}

func (suite *StoreTestSuite) testDeletePendingKeepsReady(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("reap")

	ready := mustReady(t, store, pendingRecord(owner, "a.txt", baseTime), "a")

	deleted, err := store.DeletePending(testContext(), ready.ID, owner)
	require.NoError(t, err)
	assert.False(t, deleted)

	rec, err := store.FindByID(testContext(), ready.ID)
	require.NoError(t, err)
	assert.Equal(t, files.StatusReady, rec.Status)
	_, err = store.FindByLinkID(testContext(), ready.LinkID)
	assert.NoError(t, err)
}

func (suite *StoreTestSuite) testDeletePendingWrongOwner(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("reap")

	pending := mustInsert(t, store, pendingRecord(owner, "a.txt", baseTime))

	deleted, err := store.DeletePending(testContext(), pending.ID, uniqueOwner("intruder"))
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.FindByID(testContext(), pending.ID)
	assert.NoError(t, err)
}
