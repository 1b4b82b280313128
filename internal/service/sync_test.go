package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

type syncFixture struct {
	store    *store.Store
	relay    *relay.MemoryRelay
	identity *relay.LocalIdentity
	sync     *SyncService
	owner    string
}

func setupSyncService(t *testing.T) *syncFixture {
	t.Helper()

	testStore, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	identity, err := relay.NewLocalIdentity()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	memRelay := relay.NewMemoryRelay("test-relay", identity)
	reconciler := NewReconciler(testStore, logger)
	svc := NewSyncService(testStore, reconciler, memRelay, identity, []string{"wss://relay.example"}, logger)

	return &syncFixture{
		store:    testStore,
		relay:    memRelay,
		identity: identity,
		sync:     svc,
		owner:    identity.PublicKey(),
	}
}

func (f *syncFixture) createBook(t *testing.T, localID string) *domain.Book {
	t.Helper()
	book := &domain.Book{
		ContentHash:   testHash,
		Title:         "Book " + localID,
		Author:        "Author",
		LocalID:       localID,
		OwnerIdentity: f.owner,
		HasBinaryData: true,
	}
	require.NoError(t, f.store.CreateBook(context.Background(), book))
	return book
}

func TestSync_PullsRemoteState(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()

	f.relay.Inject(relay.Event{
		ID:        "evt1",
		Author:    f.owner,
		Kind:      relay.KindBook,
		CreatedAt: 100,
		Tags:      [][]string{{"d", testHash}, {"title", "Remote Book"}},
	})

	result := f.sync.Sync(ctx)

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Stats.BooksCreated)

	book, err := f.store.GetBookByHash(ctx, f.owner, testHash)
	require.NoError(t, err)
	assert.Equal(t, "Remote Book", book.Title)
	assert.True(t, book.IsGhost())

	status := f.sync.Status()
	assert.Equal(t, SyncSuccess, status.Phase)
	assert.Equal(t, 1, status.MergedCount)
	assert.NotNil(t, status.LastSyncAt)
}

func TestSync_FetchFailureReportedAsValue(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()

	f.relay.SetFailure(errors.New("connection refused"))

	result := f.sync.Sync(ctx)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	status := f.sync.Status()
	assert.Equal(t, SyncError, status.Phase)
	assert.Equal(t, result.Error, status.Error)

	// A later pass recovers and clears the error.
	f.relay.SetFailure(nil)
	result = f.sync.Sync(ctx)
	assert.True(t, result.Success)
	assert.Empty(t, f.sync.Status().Error)
}

func TestSync_RefusesReentrantPass(t *testing.T) {
	f := setupSyncService(t)

	require.True(t, f.sync.begin())

	result := f.sync.Sync(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "sync already in progress", result.Error)

	f.sync.finish(SyncResult{Success: true})
	assert.Equal(t, SyncSuccess, f.sync.Status().Phase)
}

func TestPublishBook(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()
	f.createBook(t, "bk-1")

	published, err := f.sync.PublishBook(ctx, "bk-1")
	require.NoError(t, err)
	assert.True(t, published.IsPublic)
	assert.NotEmpty(t, published.RemoteEventID)
	assert.False(t, published.SyncPending)
	assert.Equal(t, []string{"test-relay"}, published.Relays)

	// The stamped state is persisted, not just returned.
	stored, err := f.store.GetBook(ctx, f.owner, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, published.RemoteEventID, stored.RemoteEventID)

	assert.Equal(t, 1, f.relay.Len())
}

func TestPublishBook_FailureMarksPending(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()
	f.createBook(t, "bk-1")

	f.relay.SetFailure(errors.New("relay down"))

	book, err := f.sync.PublishBook(ctx, "bk-1")
	require.Error(t, err)
	require.NotNil(t, book, "the book comes back even when the publish fails")

	stored, err := f.store.GetBook(ctx, f.owner, "bk-1")
	require.NoError(t, err)
	assert.True(t, stored.SyncPending)
	assert.True(t, stored.IsPublic, "intent to share sticks even when the publish fails")
	assert.False(t, stored.Published())
}

func TestSync_RetriesPendingPublishes(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()
	f.createBook(t, "bk-1")

	f.relay.SetFailure(errors.New("relay down"))
	_, err := f.sync.PublishBook(ctx, "bk-1")
	require.Error(t, err)

	f.relay.SetFailure(nil)
	result := f.sync.Sync(ctx)

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Republished)
	assert.Equal(t, 0, result.StillPending)

	stored, err := f.store.GetBook(ctx, f.owner, "bk-1")
	require.NoError(t, err)
	assert.False(t, stored.SyncPending)
	assert.True(t, stored.Published())
}

func TestSync_PendingStaysPendingWhileRelayDown(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()
	f.createBook(t, "bk-1")

	f.relay.SetFailure(errors.New("relay down"))
	_, err := f.sync.PublishBook(ctx, "bk-1")
	require.Error(t, err)

	// The relay is still down, so the pass fails and the record stays queued.
	result := f.sync.Sync(ctx)
	assert.False(t, result.Success)

	stored, err := f.store.GetBook(ctx, f.owner, "bk-1")
	require.NoError(t, err)
	assert.True(t, stored.SyncPending)
}

func TestPublishAnnotation(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()

	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}
	require.NoError(t, f.store.PutAnnotation(ctx, &domain.Annotation{
		Key:           key,
		OwnerIdentity: f.owner,
		Text:          "a passage worth keeping",
		Color:         domain.ColorYellow,
		CreatedAt:     100,
	}))

	published, err := f.sync.PublishAnnotation(ctx, key)
	require.NoError(t, err)
	assert.True(t, published.Published())
	assert.Equal(t, 1, f.relay.Len())
}

func TestPublishTombstone_FailureQueuesRetry(t *testing.T) {
	f := setupSyncService(t)
	ctx := context.Background()
	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "2.10-2.50"}

	f.relay.SetFailure(errors.New("relay down"))
	require.Error(t, f.sync.PublishTombstone(ctx, key))

	pending, err := f.store.ListPendingTombstones(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, key, pending[0].Key)

	// Next pass flushes the queued tombstone.
	f.relay.SetFailure(nil)
	result := f.sync.Sync(ctx)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Republished)

	pending, err = f.store.ListPendingTombstones(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSync_RoundTripAcrossDevices(t *testing.T) {
	ctx := context.Background()

	// Device A publishes a book and an annotation.
	a := setupSyncService(t)
	a.createBook(t, "bk-1")
	key := domain.AnnotationKey{ContentHash: testHash, PositionRange: "1.0-1.9"}
	require.NoError(t, a.store.PutAnnotation(ctx, &domain.Annotation{
		Key:           key,
		OwnerIdentity: a.owner,
		Text:          "shared thought",
		CreatedAt:     100,
	}))

	_, err := a.sync.PublishBook(ctx, "bk-1")
	require.NoError(t, err)
	_, err = a.sync.PublishAnnotation(ctx, key)
	require.NoError(t, err)

	// Device B shares the identity and relay but has an empty partition.
	bStore, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { bStore.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	bSync := NewSyncService(bStore, NewReconciler(bStore, logger), a.relay, a.identity, nil, logger)

	result := bSync.Sync(ctx)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Stats.BooksCreated)
	assert.Equal(t, 1, result.Stats.AnnotationsMerged)

	book, err := bStore.GetBookByHash(ctx, a.owner, testHash)
	require.NoError(t, err)
	assert.Equal(t, "Book bk-1", book.Title)
	assert.True(t, book.IsGhost(), "the binary payload does not travel over relays")

	got, err := bStore.GetAnnotation(ctx, a.owner, key)
	require.NoError(t, err)
	assert.Equal(t, "shared thought", got.Text)
}
