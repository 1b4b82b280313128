package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

func testAnnotation(owner, hash, positionRange, text string) *domain.Annotation {
	return &domain.Annotation{
		Key:           domain.AnnotationKey{ContentHash: hash, PositionRange: positionRange},
		OwnerIdentity: owner,
		Text:          text,
		Color:         domain.ColorYellow,
		CreatedAt:     1700000000,
	}
}

func TestAnnotationRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	hash := strings.Repeat("a", 64)

	a := testAnnotation("alice", hash, "3.100-3.250", "a striking passage")
	require.NoError(t, s.PutAnnotation(ctx, a))

	got, err := s.GetAnnotation(ctx, "alice", a.Key)
	require.NoError(t, err)
	assert.Equal(t, a.Text, got.Text)
	assert.Equal(t, a.Color, got.Color)
}

func TestPutAnnotation_ReplacesInPlace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	hash := strings.Repeat("a", 64)

	require.NoError(t, s.PutAnnotation(ctx, testAnnotation("alice", hash, "1.0-1.9", "first")))
	require.NoError(t, s.PutAnnotation(ctx, testAnnotation("alice", hash, "1.0-1.9", "second")))

	// The composite key is the identity: same location, one record.
	all, err := s.ListAnnotationsForBook(ctx, "alice", hash)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Text)
}

func TestListAnnotationsForBook_ScopedByHash(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	hashA := strings.Repeat("a", 64)
	hashB := strings.Repeat("b", 64)

	require.NoError(t, s.PutAnnotation(ctx, testAnnotation("alice", hashA, "1.0-1.9", "on A")))
	require.NoError(t, s.PutAnnotation(ctx, testAnnotation("alice", hashA, "2.0-2.9", "also on A")))
	require.NoError(t, s.PutAnnotation(ctx, testAnnotation("alice", hashB, "1.0-1.9", "on B")))
	require.NoError(t, s.PutAnnotation(ctx, testAnnotation("bob", hashA, "1.0-1.9", "bob's")))

	forA, err := s.ListAnnotationsForBook(ctx, "alice", hashA)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	all, err := s.ListAnnotations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteAnnotation_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	hash := strings.Repeat("a", 64)

	a := testAnnotation("alice", hash, "1.0-1.9", "text")
	require.NoError(t, s.PutAnnotation(ctx, a))
	require.NoError(t, s.DeleteAnnotation(ctx, "alice", a.Key))

	_, err := s.GetAnnotation(ctx, "alice", a.Key)
	assert.True(t, domainerrors.Is(err, ErrNotFound))

	assert.NoError(t, s.DeleteAnnotation(ctx, "alice", a.Key))
}

func TestPutAnnotation_RejectsInvalid(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.PutAnnotation(ctx, &domain.Annotation{OwnerIdentity: "alice"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = s.PutAnnotation(ctx, &domain.Annotation{
		Key: domain.AnnotationKey{ContentHash: "h", PositionRange: "r"},
	})
	assert.ErrorIs(t, err, ErrInvalidOwner)
}
