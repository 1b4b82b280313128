package relay

import "context"

// Filter selects events from a relay query. Zero-value fields match everything.
type Filter struct {
	Kinds   []int
	Authors []string
	DTags   []string
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(e *Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.Author) {
		return false
	}
	if len(f.DTags) > 0 && !containsString(f.DTags, e.DTag()) {
		return false
	}
	return true
}

// PublishResult reports where and when an event was accepted.
type PublishResult struct {
	EventID   string
	Timestamp int64
	Relays    []string
}

// Client is the pub/sub network surface the sync subsystem consumes.
// Implementations own connection management and the wire protocol.
type Client interface {
	// Publish signs-and-sends an event, returning its ID and the accepted
	// timestamp. The event's ID and Sig fields may be unset on input.
	Publish(ctx context.Context, event Event) (PublishResult, error)

	// Query returns the latest version of every addressable event matching
	// the filter.
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
