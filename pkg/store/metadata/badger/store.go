// Package badger implements a persistent metadata store on BadgerDB.
//
// Records are stored as JSON under "f:<id>". Uniqueness is enforced with
// index keys ("n:" for filenames, "h:" for content hashes, "l:" for link
// ids) written in the same transaction as the record. Badger's optimistic
// concurrency control aborts the second of two racing transactions with
// ErrConflict; the store retries it, and the retry observes the winner's
// index key and fails with the appropriate uniqueness error.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/dittofiles/internal/logger"
)

// maxTxnRetries bounds retries of a transaction aborted by ErrConflict.
const maxTxnRetries = 16

// BadgerMetadataStore implements metadata.Store using BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB provides serializable
// snapshot isolation for every transaction.
type BadgerMetadataStore struct {
	db *badger.DB
}

// BadgerMetadataStoreConfig contains configuration for the BadgerDB store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk (tests).
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is the block cache size. Default: 64MB
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is the index cache size. Default: 32MB
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// BadgerOptions overrides every option above when set.
	BadgerOptions *badger.Options `mapstructure:"-"`
}

// NewBadgerMetadataStore opens (or creates) the database.
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if !config.InMemory && config.DBPath == "" {
			return nil, fmt.Errorf("badger metadata store: db_path is required")
		}

		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			opts = badger.DefaultOptions(config.DBPath)
		}

		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None) // records are small JSON documents

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 64
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 32
		}

		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Debug("Badger metadata store opened: path=%s in_memory=%v", config.DBPath, config.InMemory)

	return &BadgerMetadataStore{db: db}, nil
}

// update runs fn in a read-write transaction, retrying on ErrConflict.
func (s *BadgerMetadataStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		logger.Debug("Badger transaction conflict, retrying (attempt %d)", attempt+1)
	}
	return fmt.Errorf("transaction aborted after %d conflicts: %w", maxTxnRetries, err)
}

// view runs fn in a read-only transaction.
func (s *BadgerMetadataStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// Healthcheck verifies the database is open.
func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerMetadataStore) Close() error {
	return s.db.Close()
}
