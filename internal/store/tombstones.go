package store

import (
	"context"
	"encoding/json/v2"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// A pending tombstone remembers an annotation deletion whose relay publish
// has not succeeded yet. The annotation record itself is already gone, so the
// retry state needs its own key family.

// PendingTombstone is a delete awaiting successful relay publish.
type PendingTombstone struct {
	Key       domain.AnnotationKey `json:"key"`
	DeletedAt int64                `json:"deleted_at"` // unix seconds
}

func tombstoneKey(owner string, key domain.AnnotationKey) []byte {
	return buildKey("tomb", owner, key.ContentHash, key.PositionRange)
}

// PutPendingTombstone records a deletion that still needs publishing.
func (s *Store) PutPendingTombstone(ctx context.Context, owner string, t *PendingTombstone) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner == "" {
		return ErrInvalidOwner
	}
	if !t.Key.Valid() {
		return ErrInvalidKey
	}

	key := tombstoneKey(owner, t.Key)
	defer releaseKey(key)
	return s.setJSON(key, t)
}

// DeletePendingTombstone removes a tombstone once its publish succeeded.
// Deleting a missing tombstone is not an error.
func (s *Store) DeletePendingTombstone(ctx context.Context, owner string, key domain.AnnotationKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := tombstoneKey(owner, key)
	defer releaseKey(k)
	return s.delete(k)
}

// ListPendingTombstones returns every unpublished deletion in the partition.
func (s *Store) ListPendingTombstones(ctx context.Context, owner string) ([]*PendingTombstone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}

	prefix := []byte("tomb:" + owner + ":")
	var out []*PendingTombstone

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var t PendingTombstone
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			out = append(out, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
