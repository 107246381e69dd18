// Package files defines the file record model shared by the service layer
// and every metadata store implementation.
//
// A FileRecord goes through two states:
//   - PENDING: a reservation inserted before any byte is streamed. It holds
//     the filename slot for its owner but is invisible to listings and links.
//   - READY: content has been stored and hashed. The record is terminal
//     until it is deleted.
package files

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Visibility controls whether a record shows up in public listings.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// ParseVisibility parses a visibility value case-insensitively.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToUpper(strings.TrimSpace(s))) {
	case VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", Validationf("unknown visibility %q", s)
	}
}

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusReady   Status = "READY"
)

// DefaultContentType is used when no content type was declared and none
// could be detected.
const DefaultContentType = "application/octet-stream"

// linkIDBytes is the amount of randomness behind a link id (256 bits).
const linkIDBytes = 32

// FileRecord is the metadata of one uploaded file.
//
// Records are passed by value between the service and the stores; a store
// never hands out a pointer into its own state.
type FileRecord struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Filename    string     `json:"filename"`
	Visibility  Visibility `json:"visibility"`
	Tags        []string   `json:"tags"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	ContentHash string     `json:"contentHash,omitempty"`
	LinkID      string     `json:"linkId"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ObjectKey returns the object store key holding the record's content.
//
// Keys are per record, so two records never share an object and deleting a
// record always deletes its object.
func (r FileRecord) ObjectKey() string {
	return ObjectKey(r.OwnerID, r.ID)
}

// IsReady reports whether the record has been finalized.
func (r FileRecord) IsReady() bool {
	return r.Status == StatusReady
}

// FirstTag returns the first normalized tag, or "" for untagged records.
// It is the value used when sorting by tag.
func (r FileRecord) FirstTag() string {
	if len(r.Tags) == 0 {
		return ""
	}
	return r.Tags[0]
}

// HasTag reports whether the record carries tag, compared case-insensitively.
func (r FileRecord) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return slices.ContainsFunc(r.Tags, func(t string) bool {
		return strings.ToLower(t) == tag
	})
}

// Clone returns a deep copy of the record.
func (r FileRecord) Clone() FileRecord {
	c := r
	if r.Tags != nil {
		c.Tags = slices.Clone(r.Tags)
	}
	return c
}

// ObjectKey builds the object key for a record id within an owner namespace.
func ObjectKey(ownerID, recordID string) string {
	return ownerID + "/" + recordID
}

// ParseObjectKey splits an object key into owner and record id.
// ok is false for keys that were not produced by ObjectKey.
func ParseObjectKey(key string) (ownerID, recordID string, ok bool) {
	i := strings.LastIndexByte(key, '/')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// NewLinkID returns a fresh, unguessable download token.
func NewLinkID() (string, error) {
	buf := make([]byte, linkIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate link id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
