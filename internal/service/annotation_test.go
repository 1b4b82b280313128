package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

type annotationFixture struct {
	store       *store.Store
	relay       *relay.MemoryRelay
	annotations *AnnotationService
	sync        *SyncService
	owner       string
}

func setupAnnotationService(t *testing.T) *annotationFixture {
	t.Helper()

	testStore, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	identity, err := relay.NewLocalIdentity()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	memRelay := relay.NewMemoryRelay("test-relay", identity)
	syncSvc := NewSyncService(testStore, NewReconciler(testStore, logger), memRelay, identity, nil, logger)

	f := &annotationFixture{
		store:       testStore,
		relay:       memRelay,
		annotations: NewAnnotationService(testStore, identity, syncSvc, logger),
		sync:        syncSvc,
		owner:       identity.PublicKey(),
	}

	// Every test annotates the same book.
	require.NoError(t, testStore.CreateBook(context.Background(), &domain.Book{
		ContentHash:   testHash,
		Title:         "The Book",
		LocalID:       "bk-1",
		OwnerIdentity: f.owner,
		HasBinaryData: true,
	}))
	return f
}

func annotationKey(positionRange string) domain.AnnotationKey {
	return domain.AnnotationKey{ContentHash: testHash, PositionRange: positionRange}
}

func TestUpsert(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()

	a, err := f.annotations.Upsert(ctx, annotationKey("2.10-2.50"), "a fine passage", domain.ColorYellow, "why I liked it")
	require.NoError(t, err)
	assert.Equal(t, "a fine passage", a.Text)
	assert.Equal(t, "why I liked it", a.Note)
	assert.NotZero(t, a.CreatedAt)
	assert.False(t, a.IsPublic)
}

func TestUpsert_Validation(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()

	_, err := f.annotations.Upsert(ctx, domain.AnnotationKey{}, "text", domain.ColorYellow, "")
	assert.Error(t, err)

	_, err = f.annotations.Upsert(ctx, annotationKey("1.0-1.9"), "   ", domain.ColorYellow, "")
	assert.Error(t, err)

	_, err = f.annotations.Upsert(ctx, annotationKey("1.0-1.9"), "text", "magenta", "")
	assert.Error(t, err)
}

func TestUpsert_RequiresBook(t *testing.T) {
	f := setupAnnotationService(t)

	key := domain.AnnotationKey{
		ContentHash:   "0000000000000000000000000000000000000000000000000000000000000000",
		PositionRange: "1.0-1.9",
	}
	_, err := f.annotations.Upsert(context.Background(), key, "text", domain.ColorYellow, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
}

func TestUpsert_ReplaceKeepsLineage(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()
	key := annotationKey("2.10-2.50")

	first, err := f.annotations.Upsert(ctx, key, "first text", domain.ColorYellow, "")
	require.NoError(t, err)

	// Simulate a published state plus a local thread link.
	first.StampRemote("evt1", 100, nil)
	first.IsPublic = true
	first.ChatThreadIDs = []string{"thread-1"}
	require.NoError(t, f.store.PutAnnotation(ctx, first))

	second, err := f.annotations.Upsert(ctx, key, "second text", domain.ColorBlue, "")
	require.NoError(t, err)

	assert.Equal(t, "second text", second.Text)
	assert.Equal(t, domain.ColorBlue, second.Color)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "evt1", second.RemoteEventID, "sync lineage survives the replace")
	assert.Equal(t, []string{"thread-1"}, second.ChatThreadIDs)
	assert.True(t, second.SyncPending, "editing a published annotation leaves it locally ahead")
}

func TestDelete_UnpublishedIsPurelyLocal(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()
	key := annotationKey("2.10-2.50")

	_, err := f.annotations.Upsert(ctx, key, "text", domain.ColorYellow, "")
	require.NoError(t, err)

	require.NoError(t, f.annotations.Delete(ctx, key))

	_, err = f.annotations.Get(ctx, f.owner, key)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// Never published, so no tombstone reaches the relay.
	assert.Equal(t, 0, f.relay.Len())

	// Deleting again is a no-op.
	assert.NoError(t, f.annotations.Delete(ctx, key))
}

func TestDelete_PublishedAnnouncesTombstone(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()
	key := annotationKey("2.10-2.50")

	// Pin the clock so the tombstone is strictly newer than the publish.
	base := time.Unix(1700000000, 0)
	f.sync.now = func() time.Time { return base }

	_, err := f.annotations.Upsert(ctx, key, "text", domain.ColorYellow, "")
	require.NoError(t, err)
	_, err = f.sync.PublishAnnotation(ctx, key)
	require.NoError(t, err)

	f.sync.now = func() time.Time { return base.Add(time.Second) }
	require.NoError(t, f.annotations.Delete(ctx, key))

	// The relay's latest version at this address is now a tombstone.
	events, err := f.relay.Query(ctx, relay.Filter{Kinds: []int{relay.KindAnnotation}, Authors: []string{f.owner}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	record, err := relay.ParseAnnotationEvent(&events[0])
	require.NoError(t, err)
	assert.True(t, record.Tombstone())
}

func TestDelete_TombstonePublishFailureStillDeletesLocally(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()
	key := annotationKey("2.10-2.50")

	_, err := f.annotations.Upsert(ctx, key, "text", domain.ColorYellow, "")
	require.NoError(t, err)
	_, err = f.sync.PublishAnnotation(ctx, key)
	require.NoError(t, err)

	f.relay.SetFailure(errors.New("relay down"))
	require.NoError(t, f.annotations.Delete(ctx, key), "the local delete sticks regardless")

	_, err = f.annotations.Get(ctx, f.owner, key)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	pending, err := f.store.ListPendingTombstones(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "the announcement is queued for the next sync pass")
}

func TestAttachThread(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()
	key := annotationKey("2.10-2.50")

	_, err := f.annotations.Upsert(ctx, key, "text", domain.ColorYellow, "")
	require.NoError(t, err)

	a, err := f.annotations.AttachThread(ctx, key, "thread-1")
	require.NoError(t, err)
	a, err = f.annotations.AttachThread(ctx, key, "thread-2")
	require.NoError(t, err)
	a, err = f.annotations.AttachThread(ctx, key, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"thread-1", "thread-2"}, a.ChatThreadIDs)

	_, err = f.annotations.AttachThread(ctx, key, "")
	assert.Error(t, err)
	_, err = f.annotations.AttachThread(ctx, annotationKey("9.0-9.9"), "thread-1")
	assert.Error(t, err, "the annotation must exist")
}

func TestListForBook_DerivesPages(t *testing.T) {
	f := setupAnnotationService(t)
	ctx := context.Background()

	_, err := f.annotations.Upsert(ctx, annotationKey("2.10-2.50"), "spine two", domain.ColorYellow, "")
	require.NoError(t, err)
	_, err = f.annotations.Upsert(ctx, annotationKey("epubcfi(/6/4!/4:2)"), "opaque range", domain.ColorGreen, "")
	require.NoError(t, err)

	views, err := f.annotations.ListForBook(ctx, f.owner, testHash)
	require.NoError(t, err)
	require.Len(t, views, 2)

	pages := map[string]int{}
	for _, v := range views {
		pages[v.Key.PositionRange] = v.Page
	}
	assert.Equal(t, 3, pages["2.10-2.50"], "spine index 2 displays as page 3")
	assert.Equal(t, 0, pages["epubcfi(/6/4!/4:2)"], "opaque ranges derive no page")
}

func TestDerivePage(t *testing.T) {
	assert.Equal(t, 1, derivePage("0.0-0.50"))
	assert.Equal(t, 13, derivePage("12.5-12.80"))
	assert.Equal(t, 0, derivePage("no-dots-here"))
	assert.Equal(t, 0, derivePage("x.1-x.2"))
	assert.Equal(t, 0, derivePage("-3.1-3.2"))
}
