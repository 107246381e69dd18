package files

import (
	"slices"
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength is the maximum filename length in bytes.
	MaxFilenameLength = 255

	// MaxTags is the maximum number of distinct tags on a record.
	MaxTags = 32

	// MaxTagLength is the maximum length of a single tag in bytes.
	MaxTagLength = 64
)

// NormalizeFilename trims surrounding whitespace and rejects empty names,
// names containing control characters, path separators and overlong names.
func NormalizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Validationf("filename must not be blank")
	}
	if len(name) > MaxFilenameLength {
		return "", Validationf("filename exceeds %d bytes", MaxFilenameLength)
	}
	if name == "." || name == ".." {
		return "", Validationf("filename %q is reserved", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", Validationf("filename must not contain control characters")
		}
		if r == '/' || r == '\\' {
			return "", Validationf("filename must not contain path separators")
		}
	}
	return name, nil
}

// NormalizeTags trims and lowercases tags, drops blanks and duplicates, and
// returns them sorted. The result is never nil.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if len(t) > MaxTagLength {
			return nil, Validationf("tag %q exceeds %d bytes", t, MaxTagLength)
		}
		for _, r := range t {
			if unicode.IsControl(r) {
				return nil, Validationf("tag must not contain control characters")
			}
		}
		out = append(out, t)
	}

	slices.Sort(out)
	out = slices.Compact(out)

	if len(out) > MaxTags {
		return nil, Validationf("at most %d tags are allowed", MaxTags)
	}
	return out, nil
}

// NormalizeOwner trims the owner id and rejects blank values.
func NormalizeOwner(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", Validationf("owner id must not be blank")
	}
	for _, r := range ownerID {
		if unicode.IsControl(r) || r == '/' {
			return "", Validationf("owner id contains invalid characters")
		}
	}
	return ownerID, nil
}
