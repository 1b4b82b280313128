package relay

import (
	"context"
	"sync"
	"time"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// MemoryRelay is an in-process Client keeping the latest event per address.
// It backs tests and local single-node development; it applies the same
// latest-wins retention a real relay would.
type MemoryRelay struct {
	mu      sync.Mutex
	events  map[string]Event // address -> latest event
	signer  Identity
	name    string
	failure error

	// now is swappable so tests can pin timestamps.
	now func() time.Time
}

// NewMemoryRelay creates an empty in-memory relay.
func NewMemoryRelay(name string, signer Identity) *MemoryRelay {
	return &MemoryRelay{
		events: make(map[string]Event),
		signer: signer,
		name:   name,
		now:    time.Now,
	}
}

// SetNow overrides the relay clock (tests only).
func (m *MemoryRelay) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetFailure makes subsequent operations fail with a NETWORK_FETCH error
// wrapping err, or restores normal operation when err is nil.
func (m *MemoryRelay) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Publish implements Client. The event is stamped, ID-computed, signed when a
// signer is available, and retained only if it wins latest-per-address.
func (m *MemoryRelay) Publish(ctx context.Context, event Event) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failure != nil {
		return PublishResult{}, domainerrors.NetworkFetch("relay publish failed").WithCause(m.failure)
	}

	if event.CreatedAt == 0 {
		event.CreatedAt = m.now().Unix()
	}

	id, err := event.ComputeID()
	if err != nil {
		return PublishResult{}, err
	}
	event.ID = id

	if m.signer != nil && event.Sig == "" {
		sig, err := m.signer.Sign(event.ID)
		if err != nil {
			return PublishResult{}, err
		}
		event.Sig = sig
	}

	addr := event.Address()
	if existing, ok := m.events[addr]; ok {
		// Latest-wins retention, ID as tie-break, mirroring relay behavior.
		if existing.CreatedAt > event.CreatedAt ||
			(existing.CreatedAt == event.CreatedAt && existing.ID > event.ID) {
			return PublishResult{EventID: existing.ID, Timestamp: existing.CreatedAt, Relays: []string{m.name}}, nil
		}
	}
	m.events[addr] = event

	return PublishResult{EventID: event.ID, Timestamp: event.CreatedAt, Relays: []string{m.name}}, nil
}

// Query implements Client.
func (m *MemoryRelay) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failure != nil {
		return nil, domainerrors.NetworkFetch("relay query failed").WithCause(m.failure)
	}

	var out []Event
	for _, e := range m.events {
		if filter.Matches(&e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Inject stores a raw event directly, bypassing signing and ID computation.
// Tests use this to stage malformed or pre-timestamped remote state.
func (m *MemoryRelay) Inject(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.Address()] = event
}

// Len returns the number of retained addresses.
func (m *MemoryRelay) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
