package testing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// concurrentWriters is the number of goroutines racing in each test.
const concurrentWriters = 8

// RunConcurrencyTests verifies that the uniqueness invariants hold when
// writers race.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("InsertPending_SameFilename", suite.testConcurrentInsertSameFilename)
	t.Run("Finalize_SameContent", suite.testConcurrentFinalizeSameContent)
	t.Run("Rename_SameTarget", suite.testConcurrentRenameSameTarget)
	t.Run("InsertPending_DistinctFilenames", suite.testConcurrentInsertDistinct)
}

func (suite *StoreTestSuite) testConcurrentInsertSameFilename(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("race")

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < concurrentWriters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.InsertPending(testContext(), pendingRecord(owner, "race.txt", baseTime))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, metadata.ErrFilenameTaken):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(concurrentWriters-1), conflicts.Load())
}

func (suite *StoreTestSuite) testConcurrentFinalizeSameContent(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("race")

	pending := make([]*files.FileRecord, concurrentWriters)
	for i := range pending {
		pending[i] = mustInsert(t, store, pendingRecord(owner, fmt.Sprintf("f%d.txt", i), baseTime))
	}

	fin := metadata.Finalization{Size: 4, ContentType: "text/plain", ContentHash: hashOf("same"), At: baseTime}

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for _, rec := range pending {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.Finalize(testContext(), id, fin)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, metadata.ErrContentTaken):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(rec.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(concurrentWriters-1), conflicts.Load())

	count, err := store.CountByContentHash(testContext(), hashOf("same"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func (suite *StoreTestSuite) testConcurrentRenameSameTarget(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("race")

	records := make([]*files.FileRecord, concurrentWriters)
	for i := range records {
		records[i] = mustReady(t, store, pendingRecord(owner, fmt.Sprintf("src%d.txt", i), baseTime), fmt.Sprintf("body-%d", i))
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.Rename(testContext(), id, "target.txt", baseTime)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, metadata.ErrFilenameTaken):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(rec.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	page, err := store.List(testContext(), query(files.OwnedBy(owner)))
	require.NoError(t, err)
	assert.Equal(t, concurrentWriters, page.Total)

	targets := 0
	for _, item := range page.Items {
		if item.Filename == "target.txt" {
			targets++
		}
	}
	assert.Equal(t, 1, targets)
}

func (suite *StoreTestSuite) testConcurrentInsertDistinct(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("race")

	var wg sync.WaitGroup
	for i := 0; i < concurrentWriters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.InsertPending(testContext(), pendingRecord(owner, fmt.Sprintf("f%d.txt", i), baseTime))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stale, err := store.ListStalePending(testContext(), baseTime.Add(time.Second), concurrentWriters*2)
	require.NoError(t, err)
	assert.Len(t, stale, concurrentWriters)
}
