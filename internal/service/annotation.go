package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// AnnotationService manages highlights and notes. The composite key
// (content hash, position range) is the whole identity: writing to an
// occupied key replaces the record, so the same passage can never carry two
// annotations in one partition.
type AnnotationService struct {
	store    *store.Store
	identity relay.Identity
	sync     *SyncService
	logger   *slog.Logger

	now func() time.Time
}

// NewAnnotationService creates a new annotation service.
func NewAnnotationService(store *store.Store, identity relay.Identity, sync *SyncService, logger *slog.Logger) *AnnotationService {
	return &AnnotationService{
		store:    store,
		identity: identity,
		sync:     sync,
		logger:   logger,
		now:      time.Now,
	}
}

// AnnotationView is an annotation plus display fields derived at read time.
// Derived fields are never persisted; they are recomputed from the position
// range on every read.
type AnnotationView struct {
	*domain.Annotation
	Page int `json:"page,omitempty"`
}

// Upsert creates or replaces the annotation at the given key.
//
// The book must exist in the owner's partition, though a ghost is fine:
// annotating a book whose file has not arrived yet is normal during sync.
func (s *AnnotationService) Upsert(ctx context.Context, key domain.AnnotationKey, text string, color domain.HighlightColor, note string) (*domain.Annotation, error) {
	if !key.Valid() {
		return nil, domainerrors.Validation("annotation key requires content hash and position range")
	}
	if !color.Valid() {
		return nil, domainerrors.Validationf("unsupported highlight color %q", color)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domainerrors.Validation("annotation text cannot be empty")
	}

	owner := s.identity.PublicKey()
	if _, err := s.store.GetBookByHash(ctx, owner, key.ContentHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("no book with this content hash in your library")
		}
		return nil, err
	}

	a := &domain.Annotation{
		Key:           key,
		OwnerIdentity: owner,
		Text:          text,
		Color:         color,
		Note:          note,
		CreatedAt:     s.now().Unix(),
	}

	// Replacing an existing annotation keeps its sync lineage and local
	// thread links; only the content fields change.
	existing, err := s.store.GetAnnotation(ctx, owner, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		a.SyncState = existing.SyncState
		a.ChatThreadIDs = existing.ChatThreadIDs
		a.CreatedAt = existing.CreatedAt
		if a.Published() {
			a.MarkPending()
		}
	}

	if err := s.store.PutAnnotation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one annotation from any partition.
func (s *AnnotationService) Get(ctx context.Context, owner string, key domain.AnnotationKey) (*domain.Annotation, error) {
	return s.store.GetAnnotation(ctx, owner, key)
}

// ListForBook returns a book's annotations from any partition, with derived
// display positions attached.
func (s *AnnotationService) ListForBook(ctx context.Context, owner, contentHash string) ([]*AnnotationView, error) {
	annotations, err := s.store.ListAnnotationsForBook(ctx, owner, contentHash)
	if err != nil {
		return nil, err
	}

	views := make([]*AnnotationView, 0, len(annotations))
	for _, a := range annotations {
		views = append(views, &AnnotationView{
			Annotation: a,
			Page:       derivePage(a.Key.PositionRange),
		})
	}
	return views, nil
}

// List returns every annotation in a partition.
func (s *AnnotationService) List(ctx context.Context, owner string) ([]*domain.Annotation, error) {
	return s.store.ListAnnotations(ctx, owner)
}

// Delete removes the annotation locally, then announces a tombstone if the
// record had been published. The local delete always sticks: a failed
// tombstone publish is queued for the next sync pass, not rolled back.
func (s *AnnotationService) Delete(ctx context.Context, key domain.AnnotationKey) error {
	owner := s.identity.PublicKey()

	existing, err := s.store.GetAnnotation(ctx, owner, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Idempotent.
			return nil
		}
		return err
	}

	if err := s.store.DeleteAnnotation(ctx, owner, key); err != nil {
		return err
	}
	s.logger.Info("annotation deleted", "key", key.String())

	if existing.Published() {
		if err := s.sync.PublishTombstone(ctx, key); err != nil {
			s.logger.Warn("tombstone queued for next sync", "key", key.String(), "error", err)
		}
	}
	return nil
}

// AttachThread links a chat thread to an annotation. Thread links are
// local-only and survive remote merges by union.
func (s *AnnotationService) AttachThread(ctx context.Context, key domain.AnnotationKey, threadID string) (*domain.Annotation, error) {
	if threadID == "" {
		return nil, domainerrors.Validation("thread id cannot be empty")
	}

	owner := s.identity.PublicKey()
	a, err := s.store.GetAnnotation(ctx, owner, key)
	if err != nil {
		return nil, err
	}

	a.MergeThreadIDs([]string{threadID})
	if err := s.store.PutAnnotation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// derivePage extracts a display page from a position range of the form
// "<spineIndex>.<startOffset>-<spineIndex>.<endOffset>". Other formats are
// legal (the range is opaque to sync) and simply derive no page.
func derivePage(positionRange string) int {
	head, _, _ := strings.Cut(positionRange, "-")
	idx, _, ok := strings.Cut(head, ".")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return 0
	}
	return n + 1
}
