// Package testing provides a contract test suite for metadata.Store
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittofiles/pkg/store/metadata"
)

// StoreTestSuite is a comprehensive test suite for metadata.Store
// implementations. It exercises the uniqueness invariants, the visibility
// rules for PENDING records and the listing semantics, so every backend
// behaves the same behind the service layer.
//
// Usage:
//
//	func TestMyMetadataStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func() metadata.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh, empty Store for
	// each test. This ensures test isolation.
	NewStore func() metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Mutations", suite.RunMutationTests)
	t.Run("Lookups", suite.RunLookupTests)
	t.Run("Listings", suite.RunListTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
