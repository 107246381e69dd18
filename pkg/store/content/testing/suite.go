// Package testing provides a contract test suite for content.ObjectStore
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// StoreTestSuite is a comprehensive test suite for ObjectStore
// implementations. It tests the interface contract, not implementation
// details, making it reusable across memory, filesystem and S3 backends.
//
// Usage:
//
//	func TestMyObjectStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func() content.ObjectStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
//
// Capability tests (multipart, garbage collection) are skipped for stores
// that do not implement the corresponding interface.
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh, empty ObjectStore
	// for each test. This ensures test isolation.
	NewStore func() content.ObjectStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("PutOperations", suite.RunPutTests)
	t.Run("MultipartOperations", suite.RunMultipartTests)
	t.Run("GarbageCollection", suite.RunGCTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
