package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// SyncPhase is the orchestrator's lifecycle state.
type SyncPhase string

// Sync phases.
const (
	SyncIdle    SyncPhase = "idle"
	SyncRunning SyncPhase = "syncing"
	SyncSuccess SyncPhase = "success"
	SyncError   SyncPhase = "error"
)

// SyncStatus is the externally visible orchestrator state.
type SyncStatus struct {
	Phase        SyncPhase  `json:"phase"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	FetchedCount int        `json:"fetched_count"`
	MergedCount  int        `json:"merged_count"`
	Error        string     `json:"error,omitempty"`
}

// SyncResult is the outcome of one sync pass. Failures are reported as
// values, never panics; a failed sync leaves local data untouched.
type SyncResult struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Stats   MergeStats `json:"stats"`

	// Publish retry outcomes for records that were locally ahead.
	Republished  int `json:"republished"`
	StillPending int `json:"still_pending"`
}

// SyncService orchestrates bidirectional synchronization between the local
// partition and the relay network: fetch remote state, reconcile it in, then
// retry any pending local publishes.
type SyncService struct {
	store      *store.Store
	reconciler *Reconciler
	client     relay.Client
	identity   relay.Identity
	relays     []string
	logger     *slog.Logger

	mu     sync.Mutex
	status SyncStatus

	now func() time.Time
}

// NewSyncService creates the sync orchestrator.
func NewSyncService(store *store.Store, reconciler *Reconciler, client relay.Client, identity relay.Identity, relays []string, logger *slog.Logger) *SyncService {
	return &SyncService{
		store:      store,
		reconciler: reconciler,
		client:     client,
		identity:   identity,
		relays:     relays,
		logger:     logger,
		status:     SyncStatus{Phase: SyncIdle},
		now:        time.Now,
	}
}

// Status returns a snapshot of the orchestrator state.
func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Sync runs one full synchronization pass for the owner identity.
//
// Re-entrant calls while a pass is running are rejected without starting a
// second pass. Network failures come back inside the result, not as an
// error return; the caller decides how loudly to surface them.
func (s *SyncService) Sync(ctx context.Context) SyncResult {
	if !s.begin() {
		return SyncResult{Success: false, Error: "sync already in progress"}
	}

	owner := s.identity.PublicKey()
	result := s.run(ctx, owner)

	s.finish(result)
	return result
}

// begin transitions to the running phase, refusing if already running.
func (s *SyncService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Phase == SyncRunning {
		return false
	}
	s.status.Phase = SyncRunning
	s.status.Error = ""
	return true
}

func (s *SyncService) finish(result SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.status.LastSyncAt = &now
	s.status.FetchedCount = result.Stats.Total()
	s.status.MergedCount = result.Stats.Merged()
	if result.Success {
		s.status.Phase = SyncSuccess
	} else {
		s.status.Phase = SyncError
		s.status.Error = result.Error
	}
}

func (s *SyncService) run(ctx context.Context, owner string) SyncResult {
	events, err := s.client.Query(ctx, relay.Filter{
		Kinds:   []int{relay.KindBook, relay.KindAnnotation},
		Authors: []string{owner},
	})
	if err != nil {
		s.logger.Warn("sync fetch failed", "error", err)
		return SyncResult{Success: false, Error: err.Error()}
	}

	stats := s.reconciler.MergeEvents(ctx, owner, events)

	result := SyncResult{Success: true, Stats: stats}
	s.retryPending(ctx, owner, &result)

	s.logger.Info("sync pass complete",
		"fetched", len(events),
		"merged", stats.Merged(),
		"malformed", stats.Malformed,
		"republished", result.Republished,
		"still_pending", result.StillPending,
	)
	return result
}

// retryPending republishes every record that is locally ahead of the relays.
// Individual publish failures keep the record pending; they do not fail the
// sync pass.
func (s *SyncService) retryPending(ctx context.Context, owner string, result *SyncResult) {
	books, err := s.store.ListBooks(ctx, owner)
	if err != nil {
		s.logger.Warn("pending scan failed", "error", err)
		return
	}
	for _, book := range books {
		if !book.SyncPending {
			continue
		}
		if err := s.publishBook(ctx, book); err != nil {
			result.StillPending++
			continue
		}
		result.Republished++
	}

	annotations, err := s.store.ListAnnotations(ctx, owner)
	if err != nil {
		s.logger.Warn("pending annotation scan failed", "error", err)
		return
	}
	for _, a := range annotations {
		if !a.SyncPending {
			continue
		}
		if err := s.publishAnnotation(ctx, a); err != nil {
			result.StillPending++
			continue
		}
		result.Republished++
	}

	tombstones, err := s.store.ListPendingTombstones(ctx, owner)
	if err != nil {
		s.logger.Warn("pending tombstone scan failed", "error", err)
		return
	}
	for _, t := range tombstones {
		if err := s.publishTombstone(ctx, owner, t.Key); err != nil {
			result.StillPending++
			continue
		}
		result.Republished++
	}
}

// PublishBook shares a book's metadata to the relay network. The local record
// is the source of truth: a publish failure marks it pending and returns the
// error, but never rolls back local state.
func (s *SyncService) PublishBook(ctx context.Context, localID string) (*domain.Book, error) {
	owner := s.identity.PublicKey()
	book, err := s.store.GetBook(ctx, owner, localID)
	if err != nil {
		return nil, err
	}

	if err := s.publishBook(ctx, book); err != nil {
		return book, err
	}
	return book, nil
}

func (s *SyncService) publishBook(ctx context.Context, book *domain.Book) error {
	event := relay.BuildBookEvent(book, s.relays, s.now().Unix())

	res, err := s.client.Publish(ctx, event)
	if err != nil {
		book.MarkPending()
		book.IsPublic = true
		if uerr := s.store.UpdateBook(ctx, book); uerr != nil {
			s.logger.Error("failed to mark book pending", "local_id", book.LocalID, "error", uerr)
		}
		s.logger.Warn("book publish failed, retry on next sync",
			"local_id", book.LocalID, "error", err)
		return err
	}

	book.IsPublic = true
	book.StampRemote(res.EventID, res.Timestamp, res.Relays)
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return err
	}

	s.logger.Info("book published",
		"local_id", book.LocalID, "event_id", res.EventID, "relays", res.Relays)
	return nil
}

// PublishAnnotation shares one annotation to the relay network.
func (s *SyncService) PublishAnnotation(ctx context.Context, key domain.AnnotationKey) (*domain.Annotation, error) {
	owner := s.identity.PublicKey()
	a, err := s.store.GetAnnotation(ctx, owner, key)
	if err != nil {
		return nil, err
	}

	if err := s.publishAnnotation(ctx, a); err != nil {
		return a, err
	}
	return a, nil
}

func (s *SyncService) publishAnnotation(ctx context.Context, a *domain.Annotation) error {
	event, err := relay.BuildAnnotationEvent(a, s.relays, s.now().Unix())
	if err != nil {
		return err
	}

	res, err := s.client.Publish(ctx, event)
	if err != nil {
		a.MarkPending()
		a.IsPublic = true
		if uerr := s.store.PutAnnotation(ctx, a); uerr != nil {
			s.logger.Error("failed to mark annotation pending", "key", a.Key.String(), "error", uerr)
		}
		s.logger.Warn("annotation publish failed, retry on next sync",
			"key", a.Key.String(), "error", err)
		return err
	}

	a.IsPublic = true
	a.StampRemote(res.EventID, res.Timestamp, res.Relays)
	if err := s.store.PutAnnotation(ctx, a); err != nil {
		return err
	}

	s.logger.Info("annotation published", "key", a.Key.String(), "event_id", res.EventID)
	return nil
}

// PublishTombstone announces an annotation deletion to the relay network.
// Called after the local record is already gone; failure leaves a pending
// tombstone for the next sync pass to retry.
func (s *SyncService) PublishTombstone(ctx context.Context, key domain.AnnotationKey) error {
	return s.publishTombstone(ctx, s.identity.PublicKey(), key)
}

func (s *SyncService) publishTombstone(ctx context.Context, owner string, key domain.AnnotationKey) error {
	event, err := relay.BuildAnnotationTombstone(owner, key, s.relays, s.now().Unix())
	if err != nil {
		return err
	}

	if _, err := s.client.Publish(ctx, event); err != nil {
		pending := &store.PendingTombstone{Key: key, DeletedAt: s.now().Unix()}
		if perr := s.store.PutPendingTombstone(ctx, owner, pending); perr != nil {
			s.logger.Error("failed to record pending tombstone", "key", key.String(), "error", perr)
		}
		s.logger.Warn("tombstone publish failed, retry on next sync",
			"key", key.String(), "error", err)
		return err
	}

	if err := s.store.DeletePendingTombstone(ctx, owner, key); err != nil {
		return err
	}
	s.logger.Info("annotation tombstone published", "key", key.String())
	return nil
}
