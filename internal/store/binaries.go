package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Binary payloads are stored raw (not JSON) under "bin:{owner}:{localID}",
// keyed by the same local ID as the book record they complete.

// PutBinary stores a document payload in the owner's partition.
func (s *Store) PutBinary(ctx context.Context, owner, localID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner == "" {
		return ErrInvalidOwner
	}
	if localID == "" {
		return ErrInvalidKey
	}

	key := buildKey("bin", owner, localID)
	defer releaseKey(key)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte(nil), key...), data)
	})
}

// GetBinary retrieves a document payload from the owner's partition.
// Returns ErrNotFound if no payload is stored.
func (s *Store) GetBinary(ctx context.Context, owner, localID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}

	key := buildKey("bin", owner, localID)
	defer releaseKey(key)

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get binary: %w", err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// HasBinary reports whether a payload exists for the book.
func (s *Store) HasBinary(ctx context.Context, owner, localID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := buildKey("bin", owner, localID)
	defer releaseKey(key)
	return s.exists(key)
}

// DeleteBinary removes a payload from the owner's partition. Idempotent.
func (s *Store) DeleteBinary(ctx context.Context, owner, localID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := buildKey("bin", owner, localID)
	defer releaseKey(key)
	return s.delete(append([]byte(nil), key...))
}
