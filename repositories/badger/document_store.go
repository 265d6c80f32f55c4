package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/config"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

const keyPrefix = "doc:"

// DocumentStore keeps raw document bytes in an embedded Badger database.
type DocumentStore struct {
	db     *badgerdb.DB
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewDocumentStore opens (or creates) the store described by cfg.
func NewDocumentStore(cfg config.StorageConfig, logger *zap.Logger) (*DocumentStore, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(&zapAdapter{logger: logger.Sugar()})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	logger.Info("document store opened",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory))

	return &DocumentStore{db: db, logger: logger}, nil
}

func key(id uuid.UUID) []byte {
	return []byte(keyPrefix + id.String())
}

// Put stores data under id, replacing any previous value.
func (s *DocumentStore) Put(ctx context.Context, id uuid.UUID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(id), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store document %s: %w", id, err)
	}
	return nil
}

// Get returns the bytes stored under id or repositories.ErrNotFound.
func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the bytes stored under id. Missing ids are not an error.
func (s *DocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *DocumentStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database. Later calls return the first result.
func (s *DocumentStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

// zapAdapter routes badger's logger through zap.
type zapAdapter struct {
	logger *zap.SugaredLogger
}

func (a *zapAdapter) Errorf(format string, args ...interface{})   { a.logger.Errorf(format, args...) }
func (a *zapAdapter) Warningf(format string, args ...interface{}) { a.logger.Warnf(format, args...) }
func (a *zapAdapter) Infof(format string, args ...interface{})    { a.logger.Debugf(format, args...) }
func (a *zapAdapter) Debugf(format string, args ...interface{})   { a.logger.Debugf(format, args...) }
