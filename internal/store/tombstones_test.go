package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

func TestPendingTombstones(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	hash := strings.Repeat("a", 64)

	key1 := domain.AnnotationKey{ContentHash: hash, PositionRange: "1.0-1.9"}
	key2 := domain.AnnotationKey{ContentHash: hash, PositionRange: "2.0-2.9"}

	require.NoError(t, s.PutPendingTombstone(ctx, "alice", &PendingTombstone{Key: key1, DeletedAt: 100}))
	require.NoError(t, s.PutPendingTombstone(ctx, "alice", &PendingTombstone{Key: key2, DeletedAt: 200}))
	require.NoError(t, s.PutPendingTombstone(ctx, "bob", &PendingTombstone{Key: key1, DeletedAt: 300}))

	pending, err := s.ListPendingTombstones(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, s.DeletePendingTombstone(ctx, "alice", key1))

	pending, err = s.ListPendingTombstones(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, key2, pending[0].Key)

	// Deleting a missing tombstone is fine.
	assert.NoError(t, s.DeletePendingTombstone(ctx, "alice", key1))

	// Bob's partition unaffected.
	bobPending, err := s.ListPendingTombstones(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bobPending, 1)
}

func TestPutPendingTombstone_RequiresValidKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.PutPendingTombstone(ctx, "alice", &PendingTombstone{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = s.PutPendingTombstone(ctx, "", &PendingTombstone{
		Key: domain.AnnotationKey{ContentHash: "h", PositionRange: "r"},
	})
	assert.ErrorIs(t, err, ErrInvalidOwner)
}
