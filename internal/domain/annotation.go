package domain

import (
	"fmt"
	"strings"
)

// HighlightColor is the highlight tint of an annotation.
type HighlightColor string

// Supported highlight colors.
const (
	ColorYellow HighlightColor = "yellow"
	ColorGreen  HighlightColor = "green"
	ColorBlue   HighlightColor = "blue"
	ColorPink   HighlightColor = "pink"
)

// Valid reports whether the color is one of the supported values.
// The empty string is valid and means "no highlight tint".
func (c HighlightColor) Valid() bool {
	switch c {
	case "", ColorYellow, ColorGreen, ColorBlue, ColorPink:
		return true
	}
	return false
}

// AnnotationKey identifies an annotation by book content hash and position
// range. The pair IS the identity: there is no surrogate ID, which guarantees
// at most one annotation per book-location per owner partition.
type AnnotationKey struct {
	ContentHash   string `json:"content_hash"`
	PositionRange string `json:"position_range"`
}

// String renders the key in its canonical wire form "contentHash:positionRange".
// The content hash is a fixed-width hex digest, so the first ':' is an
// unambiguous separator even though position ranges may contain colons.
func (k AnnotationKey) String() string {
	return k.ContentHash + ":" + k.PositionRange
}

// Valid reports whether both key components are present.
func (k AnnotationKey) Valid() bool {
	return k.ContentHash != "" && k.PositionRange != ""
}

// ParseAnnotationKey parses the canonical "contentHash:positionRange" form.
func ParseAnnotationKey(s string) (AnnotationKey, error) {
	hash, rng, ok := strings.Cut(s, ":")
	if !ok || hash == "" || rng == "" {
		return AnnotationKey{}, fmt.Errorf("invalid annotation key %q", s)
	}
	return AnnotationKey{ContentHash: hash, PositionRange: rng}, nil
}

// Annotation is a highlight or note anchored to a position range in a book.
type Annotation struct {
	SyncState

	Key           AnnotationKey  `json:"key"`
	OwnerIdentity string         `json:"owner_identity"`
	Text          string         `json:"text"`
	Color         HighlightColor `json:"color,omitempty"`
	Note          string         `json:"note,omitempty"`
	CreatedAt     int64          `json:"created_at"` // unix seconds

	// ChatThreadIDs is local-only state linking this annotation to chat
	// threads about the passage. Remote merges preserve it by union.
	ChatThreadIDs []string `json:"chat_thread_ids,omitempty"`
}

// MergeThreadIDs unions the given thread IDs into the annotation, keeping
// existing order and dropping duplicates.
func (a *Annotation) MergeThreadIDs(ids []string) {
	seen := make(map[string]bool, len(a.ChatThreadIDs))
	for _, id := range a.ChatThreadIDs {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			a.ChatThreadIDs = append(a.ChatThreadIDs, id)
			seen[id] = true
		}
	}
}
