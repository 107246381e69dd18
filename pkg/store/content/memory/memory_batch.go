package memory

import (
	"context"

	"github.com/marmos91/dittofiles/pkg/store/content"
)

// ============================================================================
// GarbageCollectableStore Interface Implementation
// ============================================================================

// ListAllObjects returns a snapshot of every stored key.
//
// Context Cancellation:
// Checked before acquiring the lock and every 100 keys while iterating.
func (s *MemoryObjectStore) ListAllObjects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))

	i := 0
	for key := range s.objects {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		keys = append(keys, key)
		i++
	}

	return keys, nil
}

// DeleteBatch removes multiple keys under a single write lock.
//
// Returns:
//   - map[string]error: keys that could not be deleted (empty = all succeeded)
//   - error: only for context cancellation
func (s *MemoryObjectStore) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make(map[string]error)

	for i, key := range keys {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				// Context cancelled - mark remaining as failed
				for _, rest := range keys[i:] {
					failures[rest] = err
				}
				return failures, err
			}
		}

		delete(s.objects, key)
	}

	return failures, nil
}

var _ content.GarbageCollectableStore = (*MemoryObjectStore)(nil)
