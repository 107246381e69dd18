package files

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Defaults(t *testing.T) {
	q, err := DefaultNormalizer().Normalize(OwnedBy("u1"), RawQuery{})
	require.NoError(t, err)

	assert.Equal(t, OwnedBy("u1"), q.Scope)
	assert.Equal(t, SortByCreatedAt, q.Sort)
	assert.Equal(t, SortDesc, q.Dir)
	assert.Equal(t, 0, q.Page)
	assert.Equal(t, DefaultPageSize, q.Size)
	assert.Empty(t, q.Tag)
	assert.Empty(t, q.Q)
}

func TestNormalizer_Clamping(t *testing.T) {
	n := Normalizer{DefaultPageSize: 10, MaxPageSize: 50}

	tests := []struct {
		name     string
		raw      RawQuery
		wantPage int
		wantSize int
	}{
		{"oversized page size is clamped", RawQuery{Size: "500"}, 0, 50},
		{"zero size falls back to default", RawQuery{Size: "0"}, 0, 10},
		{"negative size falls back to default", RawQuery{Size: "-3"}, 0, 10},
		{"negative page becomes zero", RawQuery{Page: "-1"}, 0, 10},
		{"explicit values kept", RawQuery{Page: "3", Size: "25"}, 3, 25},
		{"whitespace is ignored", RawQuery{Page: " 2 ", Size: " 5 "}, 2, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := n.Normalize(PublicScope(), tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, q.Page)
			assert.Equal(t, tt.wantSize, q.Size)
		})
	}
}

func TestNormalizer_ZeroValueUsesBuiltInDefaults(t *testing.T) {
	q, err := Normalizer{}.Normalize(PublicScope(), RawQuery{Size: "1000"})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, q.Size)
}

func TestNormalizer_SortAndTag(t *testing.T) {
	q, err := DefaultNormalizer().Normalize(PublicScope(), RawQuery{
		Tag:  "  DeMo ",
		Sort: "FILENAME",
		Dir:  "Asc",
	})
	require.NoError(t, err)
	assert.Equal(t, "demo", q.Tag)
	assert.Equal(t, SortByFilename, q.Sort)
	assert.Equal(t, SortAsc, q.Dir)

	q, err = DefaultNormalizer().Normalize(PublicScope(), RawQuery{Tag: "   ", Sort: "createdAt"})
	require.NoError(t, err)
	assert.Empty(t, q.Tag, "blank tag means no filter")
	assert.Equal(t, SortByCreatedAt, q.Sort)
}

func TestNormalizer_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  RawQuery
	}{
		{"unknown sort key", RawQuery{Sort: "owner"}},
		{"unknown direction", RawQuery{Dir: "sideways"}},
		{"non numeric page", RawQuery{Page: "abc"}},
		{"non numeric size", RawQuery{Size: "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultNormalizer().Normalize(PublicScope(), tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func record(id, owner, name string, vis Visibility, created time.Time, tags ...string) FileRecord {
	return FileRecord{
		ID:          id,
		OwnerID:     owner,
		Filename:    name,
		Visibility:  vis,
		Tags:        tags,
		ContentType: "text/plain",
		Status:      StatusReady,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestListQuery_Apply(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []FileRecord{
		record("1", "u1", "b.txt", VisibilityPublic, base, "demo"),
		record("2", "u1", "A.txt", VisibilityPrivate, base.Add(time.Minute), "other"),
		record("3", "u2", "c.txt", VisibilityPublic, base.Add(2*time.Minute), "demo", "x"),
		record("4", "u1", "d.txt", VisibilityPublic, base.Add(3*time.Minute)),
	}
	pending := record("5", "u1", "pending.txt", VisibilityPublic, base)
	pending.Status = StatusPending
	records = append(records, pending)

	t.Run("owner scope excludes pending and other owners", func(t *testing.T) {
		q, err := DefaultNormalizer().Normalize(OwnedBy("u1"), RawQuery{})
		require.NoError(t, err)

		page := q.Apply(records)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, []string{"4", "2", "1"}, ids(page.Items))
	})

	t.Run("public scope with tag filter", func(t *testing.T) {
		q, err := DefaultNormalizer().Normalize(PublicScope(), RawQuery{Tag: "DEMO", Sort: "filename", Dir: "asc"})
		require.NoError(t, err)

		page := q.Apply(records)
		assert.Equal(t, []string{"1", "3"}, ids(page.Items))
	})

	t.Run("filename sort is case insensitive", func(t *testing.T) {
		q, err := DefaultNormalizer().Normalize(OwnedBy("u1"), RawQuery{Sort: "filename", Dir: "asc"})
		require.NoError(t, err)

		page := q.Apply(records)
		assert.Equal(t, []string{"2", "1", "4"}, ids(page.Items))
	})

	t.Run("substring filter", func(t *testing.T) {
		q, err := DefaultNormalizer().Normalize(OwnedBy("u1"), RawQuery{Q: "A."})
		require.NoError(t, err)

		page := q.Apply(records)
		assert.Equal(t, []string{"2"}, ids(page.Items))
	})

	t.Run("page beyond the end is empty", func(t *testing.T) {
		q, err := DefaultNormalizer().Normalize(OwnedBy("u1"), RawQuery{Page: "7", Size: "2"})
		require.NoError(t, err)

		page := q.Apply(records)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
		assert.Equal(t, 3, page.Total)
	})

	t.Run("tie break by id keeps pages disjoint", func(t *testing.T) {
		same := []FileRecord{
			record("c", "u9", "x", VisibilityPrivate, base),
			record("a", "u9", "x", VisibilityPrivate, base),
			record("b", "u9", "x", VisibilityPrivate, base),
		}
		var seen []string
		for p := range 3 {
			q := ListQuery{Scope: OwnedBy("u9"), Sort: SortByCreatedAt, Dir: SortDesc, Page: p, Size: 1}
			seen = append(seen, ids(q.Apply(same).Items)...)
		}
		assert.Equal(t, []string{"a", "b", "c"}, seen)
	})

	t.Run("tag sort uses first tag", func(t *testing.T) {
		q := ListQuery{Scope: OwnedBy("u1"), Sort: SortByTag, Dir: SortAsc, Size: 10}
		page := q.Apply(records)
		assert.Equal(t, []string{"4", "1", "2"}, ids(page.Items))
	})
}

func ids(records []FileRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
