package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

func TestSpectateSessionLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetSpectateSession(ctx)
	assert.True(t, domainerrors.Is(err, ErrNotFound))

	session := &domain.SpectateSession{
		Target:     "target-identity",
		Relays:     []string{"wss://relay.example"},
		LastSynced: time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.PutSpectateSession(ctx, session))

	got, err := s.GetSpectateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Target, got.Target)
	assert.Equal(t, session.Relays, got.Relays)

	require.NoError(t, s.ClearSpectateSession(ctx))
	_, err = s.GetSpectateSession(ctx)
	assert.True(t, domainerrors.Is(err, ErrNotFound))

	// Clearing twice is fine.
	assert.NoError(t, s.ClearSpectateSession(ctx))
}

func TestSpectateHistoryPersistence(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	history, err := s.GetSpectateHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history.Entries, "missing history reads as empty")

	history.Record("alice", nil, time.Now())
	history.Record("bob", nil, time.Now())
	require.NoError(t, s.PutSpectateHistory(ctx, history))

	got, err := s.GetSpectateHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "bob", got.Entries[0].Target)
}
