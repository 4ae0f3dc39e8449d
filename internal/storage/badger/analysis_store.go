package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
)

// AnalysisStore implements interfaces.AnalysisStore on a raw Badger database.
// Badger handles per-key TTL natively: expired keys vanish from reads and
// iteration without any sweeper of our own.
type AnalysisStore struct {
	db     *badgerdb.DB
	logger arbor.ILogger
}

// NewAnalysisStore creates a new AnalysisStore instance
func NewAnalysisStore(db *BadgerDB, logger arbor.ILogger) interfaces.AnalysisStore {
	return &AnalysisStore{
		db:     db.DB(),
		logger: logger,
	}
}

// Get retrieves the value for a key, or ErrKeyNotFound when absent or expired.
func (s *AnalysisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return value, nil
}

// Set writes a value with a TTL, overwriting any existing entry and
// resetting its expiry.
func (s *AnalysisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// ListKeys returns all live keys with the given prefix in lexicographic order.
func (s *AnalysisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}

	return keys, nil
}

// Delete removes keys best-effort. Individual failures are logged and do not
// abort the remaining deletes; cache maintenance is advisory, never
// load-bearing.
func (s *AnalysisStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, key := range keys {
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			return txn.Delete([]byte(key))
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete key")
		}
	}

	return nil
}

// Ensure AnalysisStore implements the interface
var _ interfaces.AnalysisStore = (*AnalysisStore)(nil)
