// Package service provides the business logic layer: library management,
// annotation editing, relay synchronization, and spectate mode.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/id"
	"github.com/shelfmark/shelfmark-server/internal/media/covers"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// Reconciler merges batches of remote events into one owner partition.
//
// The merge is Last-Write-Wins at whole-record granularity: a newer remote
// version replaces the local publishable fields wholesale, never field by
// field. Local-only state (reading progress, chat thread links, binary
// payloads) always survives a merge. One malformed or failing record is
// skipped and logged; it never aborts the rest of the batch.
type Reconciler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store *store.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// MergeStats summarizes one reconciliation pass.
type MergeStats struct {
	BooksCreated       int `json:"books_created"`
	BooksUpdated       int `json:"books_updated"`
	AnnotationsMerged  int `json:"annotations_merged"`
	AnnotationsDeleted int `json:"annotations_deleted"`
	Unchanged          int `json:"unchanged"`
	Malformed          int `json:"malformed"`
	Failed             int `json:"failed"`
}

// Merged reports how many records changed local state.
func (s MergeStats) Merged() int {
	return s.BooksCreated + s.BooksUpdated + s.AnnotationsMerged + s.AnnotationsDeleted
}

// Total reports how many events the pass examined.
func (s MergeStats) Total() int {
	return s.Merged() + s.Unchanged + s.Malformed + s.Failed
}

// MergeEvents applies a batch of remote events to the owner's partition.
//
// Books merge before annotations so an annotation referencing a book from the
// same batch finds its ghost already created. Events authored by anyone other
// than owner are rejected as malformed; a relay must not be able to write
// into a partition it does not own.
func (r *Reconciler) MergeEvents(ctx context.Context, owner string, events []relay.Event) MergeStats {
	var stats MergeStats

	var books []*relay.BookRecord
	var annotations []*relay.AnnotationRecord

	for i := range events {
		e := &events[i]
		if e.Author != owner {
			stats.Malformed++
			r.logger.Warn("skipping event from foreign author",
				"event_id", e.ID, "author", e.Author, "partition", owner)
			continue
		}

		switch e.Kind {
		case relay.KindBook:
			record, err := relay.ParseBookEvent(e)
			if err != nil {
				stats.Malformed++
				r.logger.Warn("skipping malformed book event", "event_id", e.ID, "error", err)
				continue
			}
			books = append(books, record)
		case relay.KindAnnotation:
			record, err := relay.ParseAnnotationEvent(e)
			if err != nil {
				stats.Malformed++
				r.logger.Warn("skipping malformed annotation event", "event_id", e.ID, "error", err)
				continue
			}
			annotations = append(annotations, record)
		default:
			stats.Malformed++
			r.logger.Warn("skipping event of unknown kind", "event_id", e.ID, "kind", e.Kind)
		}
	}

	for _, record := range books {
		if err := r.mergeBook(ctx, owner, record, &stats); err != nil {
			stats.Failed++
			r.logger.Error("book merge failed",
				"event_id", record.EventID, "content_hash", record.ContentHash, "error", err)
		}
	}

	for _, record := range annotations {
		if err := r.mergeAnnotation(ctx, owner, record, &stats); err != nil {
			stats.Failed++
			r.logger.Error("annotation merge failed",
				"event_id", record.EventID, "key", record.Key.String(), "error", err)
		}
	}

	return stats
}

// mergeBook applies one remote book record. An unknown content hash creates a
// ghost book: full metadata, no binary payload.
func (r *Reconciler) mergeBook(ctx context.Context, owner string, record *relay.BookRecord, stats *MergeStats) error {
	local, err := r.store.GetBookByHash(ctx, owner, record.ContentHash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if local == nil {
		ghost := remoteBook(owner, record)
		ghost.LocalID = id.MustGenerate("bk")
		if err := r.store.CreateBook(ctx, ghost); err != nil {
			return err
		}
		stats.BooksCreated++
		r.logger.Debug("ghost book created",
			"local_id", ghost.LocalID, "title", ghost.Title, "content_hash", ghost.ContentHash)
		return nil
	}

	if !local.RemoteWins(record.Timestamp, record.EventID) {
		stats.Unchanged++
		return nil
	}

	// Whole-record metadata replace; local-only fields ride along untouched.
	local.ApplyRemoteMetadata(remoteBook(owner, record))
	local.StampRemote(record.EventID, record.Timestamp, record.Relays)
	local.IsPublic = true

	if err := r.store.UpdateBook(ctx, local); err != nil {
		return err
	}
	stats.BooksUpdated++
	return nil
}

// mergeAnnotation applies one remote annotation record, including tombstones.
func (r *Reconciler) mergeAnnotation(ctx context.Context, owner string, record *relay.AnnotationRecord, stats *MergeStats) error {
	local, err := r.store.GetAnnotation(ctx, owner, record.Key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if record.Tombstone() {
		return r.mergeTombstone(ctx, owner, record, local, stats)
	}

	if local == nil {
		a := remoteAnnotation(owner, record)
		if err := r.store.PutAnnotation(ctx, a); err != nil {
			return err
		}
		stats.AnnotationsMerged++
		return nil
	}

	if !annotationRemoteWins(local, record) {
		stats.Unchanged++
		return nil
	}

	// Whole-record replace, except chat thread links which are local-only
	// and survive by union.
	merged := remoteAnnotation(owner, record)
	merged.MergeThreadIDs(local.ChatThreadIDs)

	if err := r.store.PutAnnotation(ctx, merged); err != nil {
		return err
	}
	stats.AnnotationsMerged++
	return nil
}

func (r *Reconciler) mergeTombstone(ctx context.Context, owner string, record *relay.AnnotationRecord, local *domain.Annotation, stats *MergeStats) error {
	if local == nil {
		// Already gone, or never existed here. Either way there is nothing
		// to delete and the outcome matches the remote intent.
		stats.Unchanged++
		return nil
	}
	if !annotationRemoteWins(local, record) {
		stats.Unchanged++
		return nil
	}

	if err := r.store.DeleteAnnotation(ctx, owner, record.Key); err != nil {
		return err
	}
	// A remote tombstone also settles any locally pending delete of the
	// same address.
	if err := r.store.DeletePendingTombstone(ctx, owner, record.Key); err != nil {
		return err
	}
	stats.AnnotationsDeleted++
	r.logger.Debug("annotation deleted by tombstone", "key", record.Key.String())
	return nil
}

// annotationRemoteWins decides LWW for annotations. Published records carry a
// remote timestamp to compare against; a never-published local record is
// compared on its creation time so a local edit made after the remote version
// is not clobbered.
func annotationRemoteWins(local *domain.Annotation, record *relay.AnnotationRecord) bool {
	if local.Published() {
		return local.RemoteWins(record.Timestamp, record.EventID)
	}
	return record.Timestamp > local.CreatedAt
}

func remoteBook(owner string, record *relay.BookRecord) *domain.Book {
	b := &domain.Book{
		ContentHash:   record.ContentHash,
		Title:         record.Title,
		Author:        record.BookAuthor,
		ISBN:          record.ISBN,
		Year:          record.Year,
		Description:   record.Description,
		CoverImage:    record.Cover,
		OwnerIdentity: owner,
		HasBinaryData: false,
	}
	if len(record.Cover) > 0 {
		b.CoverPreview = covers.Preview(record.Cover)
	}
	b.IsPublic = true
	b.StampRemote(record.EventID, record.Timestamp, record.Relays)
	return b
}

func remoteAnnotation(owner string, record *relay.AnnotationRecord) *domain.Annotation {
	a := &domain.Annotation{
		Key:           record.Key,
		OwnerIdentity: owner,
		Text:          record.Body.Text,
		Color:         record.Color,
		Note:          record.Body.Note,
		CreatedAt:     record.Timestamp,
	}
	a.IsPublic = true
	a.StampRemote(record.EventID, record.Timestamp, record.Relays)
	return a
}
