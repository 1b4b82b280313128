package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

const testOwner = "alice"

var testHash = strings.Repeat("ab", 32)

// setupTestReconciler creates a reconciler over a temp store.
func setupTestReconciler(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()

	testStore, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewReconciler(testStore, logger), testStore
}

func bookEvent(id string, timestamp int64, title string) relay.Event {
	return relay.Event{
		ID:        id,
		Author:    testOwner,
		Kind:      relay.KindBook,
		CreatedAt: timestamp,
		Tags: [][]string{
			{"d", testHash},
			{"title", title},
			{"author", "Some Author"},
		},
		Content: "a description",
	}
}

func annotationEvent(id string, timestamp int64, positionRange, text string) relay.Event {
	return relay.Event{
		ID:        id,
		Author:    testOwner,
		Kind:      relay.KindAnnotation,
		CreatedAt: timestamp,
		Tags: [][]string{
			{"d", testHash + ":" + positionRange},
			{"color", "green"},
		},
		Content: `{"text":"` + text + `"}`,
	}
}

func tombstoneEvent(id string, timestamp int64, positionRange string) relay.Event {
	return relay.Event{
		ID:        id,
		Author:    testOwner,
		Kind:      relay.KindAnnotation,
		CreatedAt: timestamp,
		Tags:      [][]string{{"d", testHash + ":" + positionRange}},
		Content:   `{"deleted":true}`,
	}
}

func TestMergeEvents_CreatesGhostBook(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	stats := r.MergeEvents(ctx, testOwner, []relay.Event{bookEvent("evt1", 100, "Solaris")})

	assert.Equal(t, 1, stats.BooksCreated)
	assert.Equal(t, 1, stats.Merged())

	book, err := s.GetBookByHash(ctx, testOwner, testHash)
	require.NoError(t, err)
	assert.Equal(t, "Solaris", book.Title)
	assert.True(t, book.IsGhost(), "merged book has no binary payload yet")
	assert.True(t, book.IsPublic)
	assert.Equal(t, "evt1", book.RemoteEventID)
	assert.NotEmpty(t, book.LocalID)
}

func TestMergeEvents_Idempotent(t *testing.T) {
	r, _ := setupTestReconciler(t)
	ctx := context.Background()
	e := bookEvent("evt1", 100, "Solaris")

	first := r.MergeEvents(ctx, testOwner, []relay.Event{e})
	second := r.MergeEvents(ctx, testOwner, []relay.Event{e})

	assert.Equal(t, 1, first.BooksCreated)
	assert.Equal(t, 0, second.Merged(), "replaying the same event changes nothing")
	assert.Equal(t, 1, second.Unchanged)
}

func TestMergeEvents_OrderIndependent(t *testing.T) {
	older := bookEvent("evt1", 100, "Old Title")
	newer := bookEvent("evt2", 200, "New Title")

	for name, batch := range map[string][]relay.Event{
		"old then new": {older, newer},
		"new then old": {newer, older},
	} {
		t.Run(name, func(t *testing.T) {
			r, s := setupTestReconciler(t)
			ctx := context.Background()

			for _, e := range batch {
				r.MergeEvents(ctx, testOwner, []relay.Event{e})
			}

			book, err := s.GetBookByHash(ctx, testOwner, testHash)
			require.NoError(t, err)
			assert.Equal(t, "New Title", book.Title)
			assert.Equal(t, "evt2", book.RemoteEventID)
		})
	}
}

func TestMergeEvents_TimestampTieBreaksOnEventID(t *testing.T) {
	a := bookEvent("aaa", 100, "Title A")
	z := bookEvent("zzz", 100, "Title Z")

	for name, batch := range map[string][]relay.Event{
		"a then z": {a, z},
		"z then a": {z, a},
	} {
		t.Run(name, func(t *testing.T) {
			r, s := setupTestReconciler(t)
			ctx := context.Background()

			for _, e := range batch {
				r.MergeEvents(ctx, testOwner, []relay.Event{e})
			}

			book, err := s.GetBookByHash(ctx, testOwner, testHash)
			require.NoError(t, err)
			assert.Equal(t, "Title Z", book.Title, "greater event ID wins the tie deterministically")
		})
	}
}

func TestMergeBook_UnpublishedLocalOverwritten(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	local := &domain.Book{
		ContentHash:   testHash,
		Title:         "Local Draft Title",
		LocalID:       "bk-local",
		OwnerIdentity: testOwner,
		HasBinaryData: true,
		Progress:      42.5,
	}
	require.NoError(t, s.CreateBook(ctx, local))

	stats := r.MergeEvents(ctx, testOwner, []relay.Event{bookEvent("evt1", 1, "Published Title")})
	assert.Equal(t, 1, stats.BooksUpdated)

	book, err := s.GetBook(ctx, testOwner, "bk-local")
	require.NoError(t, err)
	assert.Equal(t, "Published Title", book.Title)
	// Local-only state rides along untouched.
	assert.Equal(t, 42.5, book.Progress)
	assert.True(t, book.HasBinaryData)
}

func TestMergeBook_StaleRemoteIgnored(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	r.MergeEvents(ctx, testOwner, []relay.Event{bookEvent("evt2", 200, "Current")})
	stats := r.MergeEvents(ctx, testOwner, []relay.Event{bookEvent("evt1", 100, "Stale")})

	assert.Equal(t, 1, stats.Unchanged)

	book, err := s.GetBookByHash(ctx, testOwner, testHash)
	require.NoError(t, err)
	assert.Equal(t, "Current", book.Title)
}

func TestMergeAnnotation_NewRecord(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	stats := r.MergeEvents(ctx, testOwner, []relay.Event{
		annotationEvent("evt1", 100, "2.10-2.50", "remote passage"),
	})
	assert.Equal(t, 1, stats.AnnotationsMerged)

	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}
	a, err := s.GetAnnotation(ctx, testOwner, key)
	require.NoError(t, err)
	assert.Equal(t, "remote passage", a.Text)
	assert.Equal(t, domain.ColorGreen, a.Color)
	assert.True(t, a.Published())
}

func TestMergeAnnotation_LocalUnpublishedEditSurvivesOlderRemote(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()
	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}

	// A never-published local edit made at t=50.
	require.NoError(t, s.PutAnnotation(ctx, &domain.Annotation{
		Key:           key,
		OwnerIdentity: testOwner,
		Text:          "fresh local edit",
		CreatedAt:     50,
	}))

	// Remote version from t=40 must not clobber it.
	stats := r.MergeEvents(ctx, testOwner, []relay.Event{
		annotationEvent("evt1", 40, "2.10-2.50", "stale remote"),
	})
	assert.Equal(t, 1, stats.Unchanged)

	a, err := s.GetAnnotation(ctx, testOwner, key)
	require.NoError(t, err)
	assert.Equal(t, "fresh local edit", a.Text)

	// A remote version newer than the local edit does win.
	stats = r.MergeEvents(ctx, testOwner, []relay.Event{
		annotationEvent("evt2", 60, "2.10-2.50", "newer remote"),
	})
	assert.Equal(t, 1, stats.AnnotationsMerged)

	a, err = s.GetAnnotation(ctx, testOwner, key)
	require.NoError(t, err)
	assert.Equal(t, "newer remote", a.Text)
}

func TestMergeAnnotation_ThreadLinksSurvive(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()
	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}

	local := &domain.Annotation{
		Key:           key,
		OwnerIdentity: testOwner,
		Text:          "old text",
		CreatedAt:     10,
		ChatThreadIDs: []string{"thread-1", "thread-2"},
	}
	require.NoError(t, s.PutAnnotation(ctx, local))

	r.MergeEvents(ctx, testOwner, []relay.Event{
		annotationEvent("evt1", 100, "2.10-2.50", "replaced text"),
	})

	a, err := s.GetAnnotation(ctx, testOwner, key)
	require.NoError(t, err)
	assert.Equal(t, "replaced text", a.Text)
	assert.ElementsMatch(t, []string{"thread-1", "thread-2"}, a.ChatThreadIDs,
		"chat thread links are local-only and survive the replace")
}

func TestMergeTombstone_DeletesAnnotation(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()
	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}

	r.MergeEvents(ctx, testOwner, []relay.Event{
		annotationEvent("evt1", 100, "2.10-2.50", "doomed"),
	})

	stats := r.MergeEvents(ctx, testOwner, []relay.Event{
		tombstoneEvent("evt2", 200, "2.10-2.50"),
	})
	assert.Equal(t, 1, stats.AnnotationsDeleted)

	_, err := s.GetAnnotation(ctx, testOwner, key)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMergeTombstone_AbsentTargetIsUnchanged(t *testing.T) {
	r, _ := setupTestReconciler(t)
	ctx := context.Background()

	stats := r.MergeEvents(ctx, testOwner, []relay.Event{
		tombstoneEvent("evt1", 100, "9.0-9.9"),
	})
	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 0, stats.Merged())
}

func TestMergeTombstone_SettlesPendingLocalDelete(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()
	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}

	// A published annotation plus the local retry state for its deletion.
	a := &domain.Annotation{Key: key, OwnerIdentity: testOwner, Text: "text", CreatedAt: 10}
	a.StampRemote("evt0", 10, nil)
	require.NoError(t, s.PutAnnotation(ctx, a))
	require.NoError(t, s.PutPendingTombstone(ctx, testOwner, &store.PendingTombstone{Key: key, DeletedAt: 20}))

	r.MergeEvents(ctx, testOwner, []relay.Event{tombstoneEvent("evt1", 100, "2.10-2.50")})

	pending, err := s.ListPendingTombstones(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, pending, "a remote tombstone settles the pending local delete")
}

func TestMergeEvents_MalformedRecordIsolated(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	batch := []relay.Event{
		bookEvent("evt1", 100, "Good Book"),
		{ID: "evt-bad", Author: testOwner, Kind: relay.KindBook, CreatedAt: 100,
			Tags: [][]string{{"d", "not-a-hash"}, {"title", "Bad"}}},
		annotationEvent("evt2", 100, "1.0-1.9", "good annotation"),
	}

	stats := r.MergeEvents(ctx, testOwner, batch)

	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.BooksCreated)
	assert.Equal(t, 1, stats.AnnotationsMerged)

	// The good records landed despite the bad one.
	_, err := s.GetBookByHash(ctx, testOwner, testHash)
	assert.NoError(t, err)
}

func TestMergeEvents_ForeignAuthorRejected(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	e := bookEvent("evt1", 100, "Smuggled")
	e.Author = "mallory"

	stats := r.MergeEvents(ctx, testOwner, []relay.Event{e})

	assert.Equal(t, 1, stats.Malformed)
	_, err := s.GetBookByHash(ctx, testOwner, testHash)
	assert.Error(t, err, "a foreign author must not write into this partition")
}

func TestMergeEvents_UnknownKindSkipped(t *testing.T) {
	r, _ := setupTestReconciler(t)

	stats := r.MergeEvents(context.Background(), testOwner, []relay.Event{
		{ID: "evt1", Author: testOwner, Kind: 1, CreatedAt: 100},
	})
	assert.Equal(t, 1, stats.Malformed)
}

func TestMergeEvents_BooksMergeBeforeAnnotations(t *testing.T) {
	r, s := setupTestReconciler(t)
	ctx := context.Background()

	// Annotation listed first; its ghost book arrives in the same batch.
	batch := []relay.Event{
		annotationEvent("evt2", 100, "1.0-1.9", "note on a new book"),
		bookEvent("evt1", 100, "New Arrival"),
	}

	stats := r.MergeEvents(ctx, testOwner, batch)
	assert.Equal(t, 1, stats.BooksCreated)
	assert.Equal(t, 1, stats.AnnotationsMerged)

	book, err := s.GetBookByHash(ctx, testOwner, testHash)
	require.NoError(t, err)
	assert.True(t, book.IsGhost())
}
