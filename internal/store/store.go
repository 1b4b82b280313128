package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// SearchIndexer is the interface for updating the search index.
// Store uses this to keep search in sync without depending on search
// implementation details. Index updates are performed asynchronously to not
// block store operations.
type SearchIndexer interface {
	IndexBook(ctx context.Context, book *domain.Book) error
	DeleteBook(ctx context.Context, owner, localID string) error
	IndexAnnotation(ctx context.Context, a *domain.Annotation) error
	DeleteAnnotation(ctx context.Context, owner string, key domain.AnnotationKey) error
	DeleteOwner(ctx context.Context, owner string) error
}

// NoopSearchIndexer is a no-op implementation for testing.
type NoopSearchIndexer struct{}

// IndexBook is a no-op.
func (NoopSearchIndexer) IndexBook(context.Context, *domain.Book) error { return nil }

// DeleteBook is a no-op.
func (NoopSearchIndexer) DeleteBook(context.Context, string, string) error { return nil }

// IndexAnnotation is a no-op.
func (NoopSearchIndexer) IndexAnnotation(context.Context, *domain.Annotation) error { return nil }

// DeleteAnnotation is a no-op.
func (NoopSearchIndexer) DeleteAnnotation(context.Context, string, domain.AnnotationKey) error {
	return nil
}

// DeleteOwner is a no-op.
func (NoopSearchIndexer) DeleteOwner(context.Context, string) error { return nil }

// NewNoopSearchIndexer creates a new no-op search indexer for testing.
func NewNoopSearchIndexer() SearchIndexer {
	return NoopSearchIndexer{}
}

// Store wraps a Badger database instance holding the three owner-partitioned
// record families: books, binaries, and annotations. Every operation takes
// the owner identity explicitly; there is no ambient current-user state here.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Search indexer for keeping search in sync with store changes.
	// Set via SetSearchIndexer after store creation to avoid circular dependencies.
	searchIndexer SearchIndexer

	// Generic entities.
	Books *Entity[domain.Book]
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:            db,
		logger:        logger,
		searchIndexer: NoopSearchIndexer{},
	}

	store.initBooks()

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// SetSearchIndexer sets the search indexer for keeping search in sync.
// This is set after store creation to avoid circular dependencies
// (store needs to exist before the search service can be created).
func (s *Store) SetSearchIndexer(indexer SearchIndexer) {
	s.searchIndexer = indexer
}

// initBooks initializes the Books entity.
// Indexed by content hash for de-duplication and ghost lookup during merges.
func (s *Store) initBooks() {
	s.Books = NewEntity[domain.Book](s, "book:").
		WithIndex("hash", func(b *domain.Book) []string {
			return []string{b.ContentHash}
		})
}

// DeleteAllForOwner drops every record in the owner's partition: books,
// binaries, annotations, and their index keys. Used by spectate clear-data.
func (s *Store) DeleteAllForOwner(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner == "" {
		return ErrInvalidOwner
	}

	prefixes := [][]byte{
		[]byte("book:" + owner + ":"),
		[]byte("book:idx:hash:" + owner + ":"),
		[]byte("bin:" + owner + ":"),
		[]byte("ann:" + owner + ":"),
		[]byte("tomb:" + owner + ":"),
	}
	if err := s.db.DropPrefix(prefixes...); err != nil {
		return fmt.Errorf("failed to drop owner partition: %w", err)
	}

	s.indexAsync(func(ctx context.Context) error {
		return s.searchIndexer.DeleteOwner(ctx, owner)
	})

	if s.logger != nil {
		s.logger.Info("owner partition deleted", "owner", owner)
	}
	return nil
}

// indexAsync runs a search index update in the background, logging failures.
// A stale search index is recoverable; a blocked write path is not.
func (s *Store) indexAsync(fn func(ctx context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil && s.logger != nil {
			s.logger.Warn("search index update failed", "error", err)
		}
	}()
}

// Helper methods for raw database operations.

// getJSON retrieves a JSON value by key.
func (s *Store) getJSON(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// setJSON stores a JSON-encoded value by key.
func (s *Store) setJSON(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// delete removes a key from the database.
func (s *Store) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// exists checks if a key exists.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DB exposes the raw badger handle for tooling (dbinspect).
func (s *Store) DB() *badger.DB {
	return s.db
}
