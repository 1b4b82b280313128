package relay

import (
	"encoding/base64"
	"encoding/json/v2"
	"fmt"

	"github.com/shelfmark/shelfmark-server/internal/contenthash"
	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

// Remote events arrive as loose tag/content bags; everything downstream of
// this file works with typed records instead. Parsing validates required
// fields and returns MALFORMED_RECORD errors so the reconciler can skip bad
// records individually without discarding a batch.

// BookRecord is a parsed remote book event.
type BookRecord struct {
	EventID     string
	Author      string // owner identity
	Timestamp   int64
	ContentHash string
	Title       string
	BookAuthor  string
	ISBN        string
	Year        string
	Description string
	Cover       []byte
	Relays      []string
}

// AnnotationBody is the JSON content of an annotation event.
type AnnotationBody struct {
	Text    string `json:"text"`
	Note    string `json:"note,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// AnnotationRecord is a parsed remote annotation event.
type AnnotationRecord struct {
	EventID   string
	Author    string // owner identity
	Timestamp int64
	Key       domain.AnnotationKey
	Body      AnnotationBody
	Color     domain.HighlightColor
	Relays    []string
}

// Tombstone reports whether this record deletes its address.
func (r *AnnotationRecord) Tombstone() bool {
	return r.Body.Deleted
}

// ParseBookEvent validates and converts a book event into a typed record.
func ParseBookEvent(e *Event) (*BookRecord, error) {
	if e.Kind != KindBook {
		return nil, domainerrors.MalformedRecordf("expected kind %d, got %d", KindBook, e.Kind)
	}
	if e.ID == "" || e.Author == "" {
		return nil, domainerrors.MalformedRecord("book event missing id or author")
	}

	hash := e.DTag()
	if !contenthash.Valid(hash) {
		return nil, domainerrors.MalformedRecordf("book event %s has no valid content hash d-tag", e.ID)
	}

	title, ok := e.Tag("title")
	if !ok || title == "" {
		return nil, domainerrors.MalformedRecordf("book event %s missing title", e.ID)
	}

	record := &BookRecord{
		EventID:     e.ID,
		Author:      e.Author,
		Timestamp:   e.CreatedAt,
		ContentHash: hash,
		Title:       title,
		Description: e.Content,
		Relays:      e.TagValues("relay"),
	}
	record.BookAuthor, _ = e.Tag("author")
	record.ISBN, _ = e.Tag("isbn")
	record.Year, _ = e.Tag("year")

	if cover, ok := e.Tag("cover"); ok && cover != "" {
		raw, err := base64.StdEncoding.DecodeString(cover)
		if err != nil {
			return nil, domainerrors.MalformedRecordf("book event %s has undecodable cover", e.ID).WithCause(err)
		}
		record.Cover = raw
	}

	return record, nil
}

// ParseAnnotationEvent validates and converts an annotation event into a typed record.
func ParseAnnotationEvent(e *Event) (*AnnotationRecord, error) {
	if e.Kind != KindAnnotation {
		return nil, domainerrors.MalformedRecordf("expected kind %d, got %d", KindAnnotation, e.Kind)
	}
	if e.ID == "" || e.Author == "" {
		return nil, domainerrors.MalformedRecord("annotation event missing id or author")
	}

	key, err := domain.ParseAnnotationKey(e.DTag())
	if err != nil {
		return nil, domainerrors.MalformedRecordf("annotation event %s has invalid d-tag", e.ID).WithCause(err)
	}
	if !contenthash.Valid(key.ContentHash) {
		return nil, domainerrors.MalformedRecordf("annotation event %s references invalid content hash", e.ID)
	}

	var body AnnotationBody
	if err := json.Unmarshal([]byte(e.Content), &body); err != nil {
		return nil, domainerrors.MalformedRecordf("annotation event %s has undecodable body", e.ID).WithCause(err)
	}
	if body.Text == "" && !body.Deleted {
		return nil, domainerrors.MalformedRecordf("annotation event %s has empty text", e.ID)
	}

	color := domain.HighlightColor("")
	if c, ok := e.Tag("color"); ok {
		color = domain.HighlightColor(c)
		if !color.Valid() {
			// An unknown tint is not worth dropping the annotation over.
			color = ""
		}
	}

	return &AnnotationRecord{
		EventID:   e.ID,
		Author:    e.Author,
		Timestamp: e.CreatedAt,
		Key:       key,
		Body:      body,
		Color:     color,
		Relays:    e.TagValues("relay"),
	}, nil
}

// BuildBookEvent constructs the publishable event for a book.
func BuildBookEvent(book *domain.Book, relays []string, createdAt int64) Event {
	tags := [][]string{
		{"d", book.ContentHash},
		{"title", book.Title},
	}
	if book.Author != "" {
		tags = append(tags, []string{"author", book.Author})
	}
	if book.ISBN != "" {
		tags = append(tags, []string{"isbn", book.ISBN})
	}
	if book.Year != "" {
		tags = append(tags, []string{"year", book.Year})
	}
	if len(book.CoverImage) > 0 {
		tags = append(tags, []string{"cover", base64.StdEncoding.EncodeToString(book.CoverImage)})
	}
	for _, r := range relays {
		tags = append(tags, []string{"relay", r})
	}

	return Event{
		Author:    book.OwnerIdentity,
		Kind:      KindBook,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   book.Description,
	}
}

// BuildAnnotationEvent constructs the publishable event for an annotation.
func BuildAnnotationEvent(a *domain.Annotation, relays []string, createdAt int64) (Event, error) {
	body, err := json.Marshal(AnnotationBody{Text: a.Text, Note: a.Note})
	if err != nil {
		return Event{}, fmt.Errorf("encode annotation body: %w", err)
	}
	return buildAnnotationEvent(a.OwnerIdentity, a.Key, string(body), a.Color, relays, createdAt), nil
}

// BuildAnnotationTombstone constructs the delete event for an annotation address.
func BuildAnnotationTombstone(owner string, key domain.AnnotationKey, relays []string, createdAt int64) (Event, error) {
	body, err := json.Marshal(AnnotationBody{Deleted: true})
	if err != nil {
		return Event{}, fmt.Errorf("encode tombstone body: %w", err)
	}
	return buildAnnotationEvent(owner, key, string(body), "", relays, createdAt), nil
}

func buildAnnotationEvent(owner string, key domain.AnnotationKey, content string, color domain.HighlightColor, relays []string, createdAt int64) Event {
	tags := [][]string{
		{"d", key.String()},
		// Back-reference to the book's address so clients can subscribe to
		// one book's annotations.
		{"a", fmt.Sprintf("%d:%s:%s", KindBook, owner, key.ContentHash)},
	}
	if color != "" {
		tags = append(tags, []string{"color", string(color)})
	}
	for _, r := range relays {
		tags = append(tags, []string{"relay", r})
	}

	return Event{
		Author:    owner,
		Kind:      KindAnnotation,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   content,
	}
}
