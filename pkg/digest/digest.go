// Package digest computes content hashes while data streams through.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Reader forwards reads from an underlying reader while feeding every byte
// into a SHA-256 digest. It never buffers beyond the caller's slice.
//
// Thread Safety: not safe for concurrent use.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

func (d *Reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		// hash.Hash.Write never returns an error
		d.h.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// N returns the number of bytes read so far.
func (d *Reader) N() int64 {
	return d.n
}

// Sum returns the lowercase hex digest of the bytes read so far.
func (d *Reader) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Sum256 returns the lowercase hex SHA-256 of data.
func Sum256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
