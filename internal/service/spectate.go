package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// SpectateService lets a reader browse another identity's public library.
//
// A spectated partition is strictly read-only: this service exposes no
// mutation of the target's books or annotations, only fetch-and-merge into
// the target's own partition plus wholesale clearing. The reader's own
// partition is never touched.
type SpectateService struct {
	store      *store.Store
	reconciler *Reconciler
	client     relay.Client
	identity   relay.Identity
	logger     *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewSpectateService creates the spectate controller.
func NewSpectateService(store *store.Store, reconciler *Reconciler, client relay.Client, identity relay.Identity, logger *slog.Logger) *SpectateService {
	return &SpectateService{
		store:      store,
		reconciler: reconciler,
		client:     client,
		identity:   identity,
		logger:     logger,
		now:        time.Now,
	}
}

// SpectateView is the result of entering or refreshing a spectate session.
type SpectateView struct {
	Session *domain.SpectateSession `json:"session"`
	Books   int                     `json:"books"`
	Fetched int                     `json:"fetched"`
	Merged  int                     `json:"merged"`
}

// Enter starts spectating the target identity.
//
// If the target's partition already holds data from an earlier session it is
// shown immediately and refreshed; otherwise the relays are queried first. A
// target with no public records at all is reported as PARTITION_NOT_FOUND.
func (s *SpectateService) Enter(ctx context.Context, target string, relays []string) (*SpectateView, error) {
	if err := relay.ValidatePublicKey(target); err != nil {
		return nil, err
	}
	if target == s.identity.PublicKey() {
		return nil, domainerrors.Validation("cannot spectate your own identity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, err := s.fetch(ctx, target)
	if err != nil {
		// A failed fetch is tolerable when cached data exists; browsing
		// stale is better than browsing nothing.
		books, lerr := s.store.ListBooks(ctx, target)
		if lerr != nil || len(books) == 0 {
			return nil, err
		}
		s.logger.Warn("spectate refresh failed, serving cached partition",
			"target", target, "error", err)
	}

	books, err := s.store.ListBooks(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, domainerrors.ErrPartitionNotFound
	}

	session := &domain.SpectateSession{
		Target:     target,
		Relays:     relays,
		LastSynced: s.now(),
	}
	if err := s.store.PutSpectateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.recordHistory(ctx, target, relays); err != nil {
		s.logger.Warn("failed to update spectate history", "error", err)
	}

	s.logger.Info("spectate session started", "target", target, "books", len(books))
	return &SpectateView{
		Session: session,
		Books:   len(books),
		Fetched: stats.Total(),
		Merged:  stats.Merged(),
	}, nil
}

// Session returns the active spectate session, or nil when not spectating.
func (s *SpectateService) Session(ctx context.Context) (*domain.SpectateSession, error) {
	session, err := s.store.GetSpectateSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// Sync refreshes the active spectate session from the relays.
func (s *SpectateService) Sync(ctx context.Context) (*SpectateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.store.GetSpectateSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("no active spectate session")
		}
		return nil, err
	}

	stats, err := s.fetch(ctx, session.Target)
	if err != nil {
		return nil, err
	}

	session.LastSynced = s.now()
	if err := s.store.PutSpectateSession(ctx, session); err != nil {
		return nil, err
	}

	books, err := s.store.ListBooks(ctx, session.Target)
	if err != nil {
		return nil, err
	}

	return &SpectateView{
		Session: session,
		Books:   len(books),
		Fetched: stats.Total(),
		Merged:  stats.Merged(),
	}, nil
}

// Exit ends the active session. The spectated partition's cached data stays
// on disk for quick re-entry.
func (s *SpectateService) Exit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearSpectateSession(ctx); err != nil {
		return err
	}
	s.logger.Info("spectate session ended")
	return nil
}

// ClearData deletes a spectated partition entirely: books, binaries,
// annotations, search entries, and the history entry. If the cleared target
// is the active session, the session ends too.
//
// The owner's own partition is off limits here.
func (s *SpectateService) ClearData(ctx context.Context, target string) error {
	if err := relay.ValidatePublicKey(target); err != nil {
		return err
	}
	if target == s.identity.PublicKey() {
		return domainerrors.Forbidden("refusing to clear your own library partition")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteAllForOwner(ctx, target); err != nil {
		return err
	}

	session, err := s.store.GetSpectateSession(ctx)
	if err == nil && session.Target == target {
		if err := s.store.ClearSpectateSession(ctx); err != nil {
			return err
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	history, err := s.store.GetSpectateHistory(ctx)
	if err != nil {
		return err
	}
	history.Remove(target)
	if err := s.store.PutSpectateHistory(ctx, history); err != nil {
		return err
	}

	s.logger.Info("spectated partition cleared", "target", target)
	return nil
}

// History returns the bounded most-recent-first re-entry list.
func (s *SpectateService) History(ctx context.Context) ([]domain.SpectateHistoryEntry, error) {
	history, err := s.store.GetSpectateHistory(ctx)
	if err != nil {
		return nil, err
	}
	return history.Entries, nil
}

func (s *SpectateService) fetch(ctx context.Context, target string) (MergeStats, error) {
	events, err := s.client.Query(ctx, relay.Filter{
		Kinds:   []int{relay.KindBook, relay.KindAnnotation},
		Authors: []string{target},
	})
	if err != nil {
		return MergeStats{}, err
	}
	return s.reconciler.MergeEvents(ctx, target, events), nil
}

func (s *SpectateService) recordHistory(ctx context.Context, target string, relays []string) error {
	history, err := s.store.GetSpectateHistory(ctx)
	if err != nil {
		return err
	}
	history.Record(target, relays, s.now())
	return s.store.PutSpectateHistory(ctx, history)
}
