package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

func TestMemoryRelay_PublishAssignsIDAndTimestamp(t *testing.T) {
	relay := NewMemoryRelay("test", nil)
	relay.SetNow(func() time.Time { return time.Unix(1700000000, 0) })

	result, err := relay.Publish(context.Background(), Event{
		Author: "alice",
		Kind:   KindBook,
		Tags:   [][]string{{"d", "hash1"}, {"title", "T"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.EventID)
	assert.Equal(t, int64(1700000000), result.Timestamp)
	assert.Equal(t, []string{"test"}, result.Relays)
}

func TestMemoryRelay_LatestWinsPerAddress(t *testing.T) {
	relay := NewMemoryRelay("test", nil)
	ctx := context.Background()

	older := Event{Author: "alice", Kind: KindBook, CreatedAt: 100,
		Tags: [][]string{{"d", "hash1"}, {"title", "old"}}}
	newer := Event{Author: "alice", Kind: KindBook, CreatedAt: 200,
		Tags: [][]string{{"d", "hash1"}, {"title", "new"}}}

	_, err := relay.Publish(ctx, newer)
	require.NoError(t, err)
	_, err = relay.Publish(ctx, older)
	require.NoError(t, err)

	events, err := relay.Query(ctx, Filter{Kinds: []int{KindBook}})
	require.NoError(t, err)
	require.Len(t, events, 1, "one address retains one event")

	title, _ := events[0].Tag("title")
	assert.Equal(t, "new", title, "stale publish must not displace the newer version")
}

func TestMemoryRelay_DistinctAddressesCoexist(t *testing.T) {
	relay := NewMemoryRelay("test", nil)
	ctx := context.Background()

	_, err := relay.Publish(ctx, Event{Author: "alice", Kind: KindBook, CreatedAt: 1,
		Tags: [][]string{{"d", "hash1"}, {"title", "A"}}})
	require.NoError(t, err)
	_, err = relay.Publish(ctx, Event{Author: "alice", Kind: KindBook, CreatedAt: 1,
		Tags: [][]string{{"d", "hash2"}, {"title", "B"}}})
	require.NoError(t, err)
	_, err = relay.Publish(ctx, Event{Author: "bob", Kind: KindBook, CreatedAt: 1,
		Tags: [][]string{{"d", "hash1"}, {"title", "C"}}})
	require.NoError(t, err)

	assert.Equal(t, 3, relay.Len())
}

func TestMemoryRelay_QueryFilters(t *testing.T) {
	relay := NewMemoryRelay("test", nil)
	relay.Inject(Event{ID: "e1", Author: "alice", Kind: KindBook, CreatedAt: 1,
		Tags: [][]string{{"d", "h1"}}})
	relay.Inject(Event{ID: "e2", Author: "alice", Kind: KindAnnotation, CreatedAt: 1,
		Tags: [][]string{{"d", "h1:r1"}}})
	relay.Inject(Event{ID: "e3", Author: "bob", Kind: KindBook, CreatedAt: 1,
		Tags: [][]string{{"d", "h2"}}})

	ctx := context.Background()

	byAuthor, err := relay.Query(ctx, Filter{Authors: []string{"alice"}})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	byKind, err := relay.Query(ctx, Filter{Kinds: []int{KindAnnotation}})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "e2", byKind[0].ID)

	byDTag, err := relay.Query(ctx, Filter{DTags: []string{"h2"}})
	require.NoError(t, err)
	require.Len(t, byDTag, 1)
	assert.Equal(t, "e3", byDTag[0].ID)
}

func TestMemoryRelay_FailureMode(t *testing.T) {
	relay := NewMemoryRelay("test", nil)
	relay.SetFailure(errors.New("link down"))

	_, err := relay.Publish(context.Background(), Event{Author: "a", Kind: KindBook,
		Tags: [][]string{{"d", "h"}}})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNetworkFetch))

	_, err = relay.Query(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNetworkFetch))

	relay.SetFailure(nil)
	_, err = relay.Query(context.Background(), Filter{})
	assert.NoError(t, err)
}

func TestMemoryRelay_SignsWhenSignerPresent(t *testing.T) {
	identity, err := NewLocalIdentity()
	require.NoError(t, err)
	relay := NewMemoryRelay("test", identity)

	_, err = relay.Publish(context.Background(), Event{
		Author: identity.PublicKey(), Kind: KindBook, CreatedAt: 1,
		Tags: [][]string{{"d", "h"}},
	})
	require.NoError(t, err)

	events, err := relay.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Sig)
}
