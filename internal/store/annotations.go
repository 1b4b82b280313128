package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// Annotations are stored under "ann:{owner}:{contentHash}:{positionRange}".
// The composite key is the identity: writing the same (hash, range) pair
// replaces in place, so a partition can never hold two annotations for the
// same book location. Listing a book's annotations is a prefix scan over
// "ann:{owner}:{contentHash}:" with no secondary index needed.

func annotationKey(owner string, key domain.AnnotationKey) []byte {
	return buildKey("ann", owner, key.ContentHash, key.PositionRange)
}

// PutAnnotation upserts an annotation by its composite key.
func (s *Store) PutAnnotation(ctx context.Context, a *domain.Annotation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.OwnerIdentity == "" {
		return ErrInvalidOwner
	}
	if !a.Key.Valid() {
		return ErrInvalidKey
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation: %w", err)
	}

	key := annotationKey(a.OwnerIdentity, a.Key)
	defer releaseKey(key)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte(nil), key...), data)
	})
	if err != nil {
		return err
	}

	ann := *a
	s.indexAsync(func(ctx context.Context) error {
		return s.searchIndexer.IndexAnnotation(ctx, &ann)
	})
	return nil
}

// GetAnnotation retrieves an annotation by composite key within the owner's partition.
func (s *Store) GetAnnotation(ctx context.Context, owner string, key domain.AnnotationKey) (*domain.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	if !key.Valid() {
		return nil, ErrInvalidKey
	}

	dbKey := annotationKey(owner, key)
	defer releaseKey(dbKey)

	var a domain.Annotation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get annotation: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAnnotation removes an annotation by composite key. Idempotent.
func (s *Store) DeleteAnnotation(ctx context.Context, owner string, key domain.AnnotationKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner == "" {
		return ErrInvalidOwner
	}

	dbKey := annotationKey(owner, key)
	defer releaseKey(dbKey)

	if err := s.delete(append([]byte(nil), dbKey...)); err != nil {
		return err
	}

	s.indexAsync(func(ctx context.Context) error {
		return s.searchIndexer.DeleteAnnotation(ctx, owner, key)
	})
	return nil
}

// ListAnnotationsForBook returns all annotations for one book in the owner's partition.
func (s *Store) ListAnnotationsForBook(ctx context.Context, owner, contentHash string) ([]*domain.Annotation, error) {
	if contentHash == "" {
		return nil, ErrInvalidKey
	}
	return s.listAnnotations(ctx, owner, "ann:"+owner+":"+contentHash+":")
}

// ListAnnotations returns all annotations in the owner's partition.
func (s *Store) ListAnnotations(ctx context.Context, owner string) ([]*domain.Annotation, error) {
	return s.listAnnotations(ctx, owner, "ann:"+owner+":")
}

func (s *Store) listAnnotations(ctx context.Context, owner, prefix string) ([]*domain.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}

	annotations := make([]*domain.Annotation, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var a domain.Annotation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			})
			if err != nil {
				return err
			}
			annotations = append(annotations, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return annotations, nil
}

// DeleteAnnotationsForBook removes every annotation for a book from the
// owner's partition. Used when a book is deleted locally.
func (s *Store) DeleteAnnotationsForBook(ctx context.Context, owner, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner == "" {
		return ErrInvalidOwner
	}
	if contentHash == "" {
		return ErrInvalidKey
	}

	annotations, err := s.ListAnnotationsForBook(ctx, owner, contentHash)
	if err != nil {
		return err
	}
	for _, a := range annotations {
		if err := s.DeleteAnnotation(ctx, owner, a.Key); err != nil {
			return err
		}
	}
	return nil
}
