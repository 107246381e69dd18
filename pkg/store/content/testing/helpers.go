package testing

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// generateTestKey returns a unique owner/id style key.
func generateTestKey(owner string) string {
	return owner + "/" + uuid.NewString()
}

// randomBytes returns n bytes of random data.
func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

// mustPut stores data under key with a known size.
func mustPut(t *testing.T, store content.ObjectStore, key string, data []byte) {
	t.Helper()
	n, err := store.Put(testContext(), key, bytes.NewReader(data), int64(len(data)), "application/octet-stream")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)
}

// mustGet reads the whole object stored under key.
func mustGet(t *testing.T, store content.ObjectStore, key string) []byte {
	t.Helper()
	obj, err := store.Get(testContext(), key)
	require.NoError(t, err)
	defer func() { _ = obj.Body.Close() }()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	return data
}

// failingReader returns data and then fails with err.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
