package files

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// SortKey selects the ordering of a listing.
type SortKey string

const (
	SortByFilename    SortKey = "filename"
	SortByCreatedAt   SortKey = "created_at"
	SortByUpdatedAt   SortKey = "updated_at"
	SortBySize        SortKey = "size"
	SortByContentType SortKey = "content_type"
	SortByTag         SortKey = "tag"
)

// SortDir is the direction of a listing.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Pagination defaults used by DefaultNormalizer.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParseSortKey parses a sort key. Both snake_case and camelCase spellings
// are accepted, case-insensitively.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "filename", "name":
		return SortByFilename, nil
	case "created_at", "createdat":
		return SortByCreatedAt, nil
	case "updated_at", "updatedat":
		return SortByUpdatedAt, nil
	case "size":
		return SortBySize, nil
	case "content_type", "contenttype":
		return SortByContentType, nil
	case "tag", "tags":
		return SortByTag, nil
	default:
		return "", Validationf("unknown sort key %q", s)
	}
}

// ParseSortDir parses a sort direction case-insensitively.
func ParseSortDir(s string) (SortDir, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return SortAsc, nil
	case "desc":
		return SortDesc, nil
	default:
		return "", Validationf("unknown sort direction %q", s)
	}
}

// Scope restricts a listing to one owner or to public records.
// Exactly one of OwnerID and Public is set.
type Scope struct {
	OwnerID string
	Public  bool
}

// OwnedBy returns the scope of records owned by ownerID.
func OwnedBy(ownerID string) Scope { return Scope{OwnerID: ownerID} }

// PublicScope returns the scope of PUBLIC records.
func PublicScope() Scope { return Scope{Public: true} }

// RawQuery carries listing parameters as received from a caller. Every field
// may be absent.
type RawQuery struct {
	Tag  string
	Q    string
	Sort string
	Dir  string
	Page string
	Size string
}

// ListQuery is a fully populated, clamped listing query.
type ListQuery struct {
	Scope Scope

	// Tag is the lowercased tag filter; empty means no filter.
	Tag string

	// Q is a case-insensitive filename substring filter; empty means no filter.
	Q string

	Sort SortKey
	Dir  SortDir
	Page int
	Size int
}

// Offset is the index of the first record of the page.
func (q ListQuery) Offset() int {
	return q.Page * q.Size
}

// Matches reports whether a record belongs to the query's result set.
// PENDING records never match.
func (q ListQuery) Matches(r FileRecord) bool {
	if r.Status != StatusReady {
		return false
	}
	if q.Scope.Public {
		if r.Visibility != VisibilityPublic {
			return false
		}
	} else if r.OwnerID != q.Scope.OwnerID {
		return false
	}
	if q.Tag != "" && !r.HasTag(q.Tag) {
		return false
	}
	if q.Q != "" && !strings.Contains(strings.ToLower(r.Filename), strings.ToLower(q.Q)) {
		return false
	}
	return true
}

// Compare orders two records according to the query's sort key and
// direction. Ties are broken by id ascending regardless of direction, so
// paging is deterministic.
func (q ListQuery) Compare(a, b FileRecord) int {
	var c int
	switch q.Sort {
	case SortByFilename:
		c = cmp.Compare(strings.ToLower(a.Filename), strings.ToLower(b.Filename))
	case SortByUpdatedAt:
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	case SortBySize:
		c = cmp.Compare(a.Size, b.Size)
	case SortByContentType:
		c = cmp.Compare(strings.ToLower(a.ContentType), strings.ToLower(b.ContentType))
	case SortByTag:
		c = cmp.Compare(a.FirstTag(), b.FirstTag())
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if q.Dir == SortDesc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Apply filters, sorts and paginates records in memory. Stores that cannot
// push the query down to their engine use it.
func (q ListQuery) Apply(records []FileRecord) Page {
	matched := make([]FileRecord, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}
	slices.SortFunc(matched, q.Compare)

	page := Page{Page: q.Page, Size: q.Size, Total: len(matched), Items: []FileRecord{}}
	start := q.Offset()
	if start >= len(matched) {
		return page
	}
	end := min(start+q.Size, len(matched))
	for _, r := range matched[start:end] {
		page.Items = append(page.Items, r.Clone())
	}
	return page
}

// Page is one page of a listing.
type Page struct {
	Items []FileRecord `json:"items"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Total int          `json:"total"`
}

// Normalizer turns raw listing parameters into a ListQuery. It is an
// immutable value configured once at startup.
type Normalizer struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultNormalizer returns a Normalizer with the default page sizes.
func DefaultNormalizer() Normalizer {
	return Normalizer{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}
}

// Normalize validates and clamps raw. Sorting defaults to creation time
// descending, page to 0 and size to the default page size. Oversized pages
// are clamped silently, and a blank tag means no tag filter.
func (n Normalizer) Normalize(scope Scope, raw RawQuery) (ListQuery, error) {
	def, maxSize := n.DefaultPageSize, n.MaxPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if def > maxSize {
		def = maxSize
	}

	q := ListQuery{
		Scope: scope,
		Tag:   strings.ToLower(strings.TrimSpace(raw.Tag)),
		Q:     strings.TrimSpace(raw.Q),
		Sort:  SortByCreatedAt,
		Dir:   SortDesc,
		Page:  0,
		Size:  def,
	}

	if strings.TrimSpace(raw.Sort) != "" {
		key, err := ParseSortKey(raw.Sort)
		if err != nil {
			return ListQuery{}, err
		}
		q.Sort = key
	}
	if strings.TrimSpace(raw.Dir) != "" {
		dir, err := ParseSortDir(raw.Dir)
		if err != nil {
			return ListQuery{}, err
		}
		q.Dir = dir
	}
	if s := strings.TrimSpace(raw.Page); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil {
			return ListQuery{}, Validationf("page must be an integer")
		}
		q.Page = max(page, 0)
	}
	if s := strings.TrimSpace(raw.Size); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil {
			return ListQuery{}, Validationf("size must be an integer")
		}
		if size > 0 {
			q.Size = min(size, maxSize)
		}
	}

	return q, nil
}
