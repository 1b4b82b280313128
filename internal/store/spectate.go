package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// Spectate state is server-wide (one viewer per instance), so these records
// are not owner-partitioned: "spectate:session" holds the active session,
// "spectate:history" the bounded re-entry list.

const (
	spectateSessionKey = "spectate:session"
	spectateHistoryKey = "spectate:history"
)

// GetSpectateSession returns the active spectate session, or ErrNotFound
// when not spectating.
func (s *Store) GetSpectateSession(ctx context.Context) (*domain.SpectateSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session domain.SpectateSession
	err := s.getJSON([]byte(spectateSessionKey), &session)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// PutSpectateSession persists the active spectate session.
func (s *Store) PutSpectateSession(ctx context.Context, session *domain.SpectateSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON([]byte(spectateSessionKey), session)
}

// ClearSpectateSession removes the active spectate session. Idempotent.
func (s *Store) ClearSpectateSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete([]byte(spectateSessionKey))
}

// GetSpectateHistory returns the re-entry history. Missing history is an
// empty list, not an error.
func (s *Store) GetSpectateHistory(ctx context.Context) (*domain.SpectateHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var history domain.SpectateHistory
	err := s.getJSON([]byte(spectateHistoryKey), &history)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &domain.SpectateHistory{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// PutSpectateHistory persists the re-entry history.
func (s *Store) PutSpectateHistory(ctx context.Context, history *domain.SpectateHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON([]byte(spectateHistoryKey), history)
}
