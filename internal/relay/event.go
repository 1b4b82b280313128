// Package relay models the addressable-event pub/sub network ShelfMark
// synchronizes through. An addressable event is identified by
// (kind, author, d-tag); relays retain only the latest-timestamped version
// per address. The wire protocol itself is out of scope; the application
// consumes relays exclusively through the Client interface.
package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/v2"
	"fmt"
)

// Event kinds used by ShelfMark. The addressable range mirrors the
// convention that kinds 30000-39999 are replaceable per (author, d-tag).
const (
	KindBook       = 30451
	KindAnnotation = 30452
)

// Event is one addressable record on the network.
type Event struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"` // public identity of the publisher
	Kind      int        `json:"kind"`
	CreatedAt int64      `json:"created_at"` // unix seconds
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// DTag returns the event's stable address tag, or "" if absent.
func (e *Event) DTag() string {
	v, _ := e.Tag("d")
	return v
}

// Tag returns the first value of the named tag.
func (e *Event) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// TagValues returns every value of the named tag, in order.
func (e *Event) TagValues(name string) []string {
	var values []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			values = append(values, t[1])
		}
	}
	return values
}

// Address returns the replaceable address "kind:author:dtag".
func (e *Event) Address() string {
	return fmt.Sprintf("%d:%s:%s", e.Kind, e.Author, e.DTag())
}

// ComputeID derives the event ID: the SHA-256 digest of the canonical
// serialization [author, created_at, kind, tags, content]. Deterministic, so
// identical events get identical IDs on every relay.
func (e *Event) ComputeID() (string, error) {
	canonical, err := json.Marshal([]any{e.Author, e.CreatedAt, e.Kind, e.Tags, e.Content})
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
