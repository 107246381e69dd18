package testing

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/files"
)

// RunListTests executes List and ListStalePending contract tests.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("List_OwnerScope", suite.testListOwnerScope)
	t.Run("List_PublicScope", suite.testListPublicScope)
	t.Run("List_HidesPending", suite.testListHidesPending)
	t.Run("List_TagFilter", suite.testListTagFilter)
	t.Run("List_FilenameFilter", suite.testListFilenameFilter)
	t.Run("List_Sorts", suite.testListSorts)
	t.Run("List_TieBreakByID", suite.testListTieBreakByID)
	t.Run("List_Pagination", suite.testListPagination)
	t.Run("List_PageBeyondEnd", suite.testListPageBeyondEnd)
	t.Run("ListStalePending", suite.testListStalePending)
}

// query builds a ListQuery with default ordering and a large page.
func query(scope files.Scope) files.ListQuery {
	return files.ListQuery{
		Scope: scope,
		Sort:  files.SortByCreatedAt,
		Dir:   files.SortAsc,
		Page:  0,
		Size:  files.MaxPageSize,
	}
}

func (suite *StoreTestSuite) testListOwnerScope(t *testing.T) {
	store := suite.NewStore()
	alice, bob := uniqueOwner("alice"), uniqueOwner("bob")

	mustReady(t, store, pendingRecord(alice, "a1.txt", baseTime), "a1")
	mustReady(t, store, pendingRecord(alice, "a2.txt", baseTime.Add(time.Second)), "a2")
	mustReady(t, store, pendingRecord(bob, "b1.txt", baseTime), "b1")

	page, err := store.List(testContext(), query(files.OwnedBy(alice)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1.txt", "a2.txt"}, filenames(page.Items))
	assert.Equal(t, 2, page.Total)
}

func (suite *StoreTestSuite) testListPublicScope(t *testing.T) {
	store := suite.NewStore()
	alice, bob := uniqueOwner("alice"), uniqueOwner("bob")

	pub := pendingRecord(alice, "public.txt", baseTime)
	pub.Visibility = files.VisibilityPublic
	pubReady := mustReady(t, store, pub, "p")

	mustReady(t, store, pendingRecord(alice, "private.txt", baseTime), "q")

	pub2 := pendingRecord(bob, "bob-public.txt", baseTime.Add(time.Second))
	pub2.Visibility = files.VisibilityPublic
	pub2Ready := mustReady(t, store, pub2, "r")

	page, err := store.List(testContext(), query(files.PublicScope()))
	require.NoError(t, err)
	assert.Equal(t, []string{pubReady.ID, pub2Ready.ID}, ids(page.Items))
	assert.Equal(t, 2, page.Total)
}

func (suite *StoreTestSuite) testListHidesPending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	mustReady(t, store, pendingRecord(owner, "ready.txt", baseTime), "ready")
	pending := pendingRecord(owner, "pending.txt", baseTime)
	pending.Visibility = files.VisibilityPublic
	mustInsert(t, store, pending)

	page, err := store.List(testContext(), query(files.OwnedBy(owner)))
	require.NoError(t, err)
	assert.Equal(t, []string{"ready.txt"}, filenames(page.Items))
	assert.Equal(t, 1, page.Total)

	public, err := store.List(testContext(), query(files.PublicScope()))
	require.NoError(t, err)
	assert.Empty(t, public.Items)
	assert.Equal(t, 0, public.Total)
}

func (suite *StoreTestSuite) testListTagFilter(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	tagged := pendingRecord(owner, "tagged.txt", baseTime)
	tagged.Tags = []string{"demo", "work"}
	mustReady(t, store, tagged, "t")
	mustReady(t, store, pendingRecord(owner, "plain.txt", baseTime), "p")

	q := query(files.OwnedBy(owner))
	q.Tag = "demo"
	page, err := store.List(testContext(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged.txt"}, filenames(page.Items))

	q.Tag = "missing"
	page, err = store.List(testContext(), q)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
}

func (suite *StoreTestSuite) testListFilenameFilter(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	mustReady(t, store, pendingRecord(owner, "Report-2026.pdf", baseTime), "r")
	mustReady(t, store, pendingRecord(owner, "notes.txt", baseTime), "n")

	q := query(files.OwnedBy(owner))
	q.Q = "report"
	page, err := store.List(testContext(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Report-2026.pdf"}, filenames(page.Items))
}

func (suite *StoreTestSuite) testListSorts(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	// Each column orders the three records differently.
	records := []struct {
		filename string
		tags     []string
		body     string
		created  time.Duration
	}{
		{"b.txt", []string{"zeta"}, "a", 0},
		{"a.txt", []string{"alpha"}, "ccc", 2 * time.Second},
		{"C.txt", []string{"mid"}, "bb", time.Second},
	}
	for _, r := range records {
		rec := pendingRecord(owner, r.filename, baseTime.Add(r.created))
		rec.Tags = r.tags
		mustReady(t, store, rec, r.body)
	}

	tests := []struct {
		sort files.SortKey
		dir  files.SortDir
		want []string
	}{
		{files.SortByFilename, files.SortAsc, []string{"a.txt", "b.txt", "C.txt"}},
		{files.SortByFilename, files.SortDesc, []string{"C.txt", "b.txt", "a.txt"}},
		{files.SortByCreatedAt, files.SortAsc, []string{"b.txt", "C.txt", "a.txt"}},
		{files.SortByCreatedAt, files.SortDesc, []string{"a.txt", "C.txt", "b.txt"}},
		{files.SortBySize, files.SortAsc, []string{"b.txt", "C.txt", "a.txt"}},
		{files.SortByTag, files.SortAsc, []string{"a.txt", "C.txt", "b.txt"}},
		{files.SortByTag, files.SortDesc, []string{"b.txt", "C.txt", "a.txt"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.sort, tt.dir), func(t *testing.T) {
			q := query(files.OwnedBy(owner))
			q.Sort = tt.sort
			q.Dir = tt.dir

			page, err := store.List(testContext(), q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, filenames(page.Items))
		})
	}
}

func (suite *StoreTestSuite) testListTieBreakByID(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	var want []string
	for i := 0; i < 5; i++ {
		rec := mustReady(t, store, pendingRecord(owner, fmt.Sprintf("f%d.txt", i), baseTime), fmt.Sprintf("body-%d", i))
		want = append(want, rec.ID)
	}

	for _, dir := range []files.SortDir{files.SortAsc, files.SortDesc} {
		q := query(files.OwnedBy(owner))
		q.Dir = dir
		page, err := store.List(testContext(), q)
		require.NoError(t, err)

		got := ids(page.Items)
		sorted := append([]string(nil), want...)
		slices.Sort(sorted)
		assert.Equal(t, sorted, got, "equal keys must be ordered by id ascending (%s)", dir)
	}
}

func (suite *StoreTestSuite) testListPagination(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	for i := 0; i < 7; i++ {
		mustReady(t, store, pendingRecord(owner, fmt.Sprintf("f%d.txt", i), baseTime.Add(time.Duration(i)*time.Second)), fmt.Sprintf("body-%d", i))
	}

	q := query(files.OwnedBy(owner))
	q.Size = 3

	var seen []string
	for page := 0; page < 3; page++ {
		q.Page = page
		result, err := store.List(testContext(), q)
		require.NoError(t, err)
		assert.Equal(t, 7, result.Total)
		assert.Equal(t, page, result.Page)
		assert.Equal(t, 3, result.Size)
		seen = append(seen, filenames(result.Items)...)
	}

	assert.Equal(t, []string{"f0.txt", "f1.txt", "f2.txt", "f3.txt", "f4.txt", "f5.txt", "f6.txt"}, seen)
}

func (suite *StoreTestSuite) testListPageBeyondEnd(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("list")

	mustReady(t, store, pendingRecord(owner, "only.txt", baseTime), "only")

	q := query(files.OwnedBy(owner))
	q.Page = 5
	q.Size = 10
	page, err := store.List(testContext(), q)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Total)
}

func (suite *StoreTestSuite) testListStalePending(t *testing.T) {
	store := suite.NewStore()
	owner := uniqueOwner("stale")

	oldest := mustInsert(t, store, pendingRecord(owner, "oldest.txt", baseTime.Add(-2*time.Hour)))
	older := mustInsert(t, store, pendingRecord(owner, "older.txt", baseTime.Add(-time.Hour)))
	mustInsert(t, store, pendingRecord(owner, "fresh.txt", baseTime.Add(time.Hour)))
	mustReady(t, store, pendingRecord(owner, "ready.txt", baseTime.Add(-3*time.Hour)), "ready")

	stale, err := store.ListStalePending(testContext(), baseTime, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{oldest.ID, older.ID}, ids(stale))

	limited, err := store.ListStalePending(testContext(), baseTime, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{oldest.ID}, ids(limited))
}
