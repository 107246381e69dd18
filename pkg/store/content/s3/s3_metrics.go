package s3

import (
	"io"
	"sync"
	"time"
)

// S3Metrics observes calls made against the bucket. Optional; the
// Prometheus implementation is in pkg/metrics.
type S3Metrics interface {
	// ObserveOperation records one S3 API call and its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes adds to the bytes moved in direction "read" or "write".
	RecordBytes(direction string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// meteredBody counts the bytes a download actually streams and reports them
// once, when the body is closed.
type meteredBody struct {
	io.ReadCloser
	metrics S3Metrics
	n       int64
	once    sync.Once
}

func newMeteredBody(body io.ReadCloser, m S3Metrics) *meteredBody {
	return &meteredBody{ReadCloser: body, metrics: m}
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *meteredBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		if b.n > 0 {
			b.metrics.RecordBytes("read", b.n)
		}
	})
	return err
}
