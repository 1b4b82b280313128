// Package search provides full-text search over a library using Bleve.
// Books and annotations are indexed as unified documents with type
// discrimination, partitioned by owner identity so spectated libraries never
// bleed into each other's results.
package search

import (
	"strconv"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// DocType represents the type of document in the unified index.
type DocType string

// Document types for the search index.
const (
	DocTypeBook       DocType = "book"
	DocTypeAnnotation DocType = "annotation"
)

// SearchDocument is the unified document structure for the Bleve index.
// All searchable entities are indexed as SearchDocuments with type
// discrimination.
type SearchDocument struct {
	// Identity
	ID    string  `json:"id"`    // Composite doc ID (see BookDocID / AnnotationDocID)
	Type  DocType `json:"type"`  // Discriminator for result grouping
	Owner string  `json:"owner"` // Partition key, every query filters on it

	// Primary searchable text.
	// Book: title, Annotation: highlighted text.
	Name string `json:"name"`

	// Book-specific fields (empty for annotations)
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Year        int    `json:"year,omitempty"`
	Ghost       bool   `json:"ghost,omitempty"`

	// Annotation-specific fields (empty for books)
	Note  string `json:"note,omitempty"`
	Color string `json:"color,omitempty"`

	// Content hash links annotations back to their book and lets a query
	// scope to a single book's annotations.
	ContentHash string `json:"content_hash,omitempty"`

	// Timestamp for sorting
	CreatedAt int64 `json:"created_at"` // Unix seconds
}

// BookDocID builds the index document ID for a book.
func BookDocID(owner, localID string) string {
	return "book|" + owner + "|" + localID
}

// AnnotationDocID builds the index document ID for an annotation.
func AnnotationDocID(owner string, key domain.AnnotationKey) string {
	return "annotation|" + owner + "|" + key.String()
}

// ToMap converts the document to a map with lowercase field names.
// Bleve by default uses Go struct field names (capitalized), but our mapping
// uses lowercase names, so we convert explicitly.
func (d *SearchDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         d.ID,
		"type":       string(d.Type),
		"owner":      d.Owner,
		"name":       d.Name,
		"created_at": d.CreatedAt,
	}

	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Year > 0 {
		m["year"] = d.Year
	}
	if d.Ghost {
		m["ghost"] = true
	}
	if d.Note != "" {
		m["note"] = d.Note
	}
	if d.Color != "" {
		m["color"] = d.Color
	}
	if d.ContentHash != "" {
		m["content_hash"] = d.ContentHash
	}

	return m
}

// BookToSearchDocument converts a domain Book to a SearchDocument.
func BookToSearchDocument(book *domain.Book) *SearchDocument {
	doc := &SearchDocument{
		ID:          BookDocID(book.OwnerIdentity, book.LocalID),
		Type:        DocTypeBook,
		Owner:       book.OwnerIdentity,
		Name:        book.Title,
		Author:      book.Author,
		Description: book.Description,
		Ghost:       book.IsGhost(),
		ContentHash: book.ContentHash,
	}

	if book.Year != "" {
		if year, err := strconv.Atoi(book.Year); err == nil {
			doc.Year = year
		}
	}

	return doc
}

// AnnotationToSearchDocument converts a domain Annotation to a SearchDocument.
func AnnotationToSearchDocument(a *domain.Annotation) *SearchDocument {
	return &SearchDocument{
		ID:          AnnotationDocID(a.OwnerIdentity, a.Key),
		Type:        DocTypeAnnotation,
		Owner:       a.OwnerIdentity,
		Name:        a.Text,
		Note:        a.Note,
		Color:       string(a.Color),
		ContentHash: a.Key.ContentHash,
		CreatedAt:   a.CreatedAt,
	}
}
