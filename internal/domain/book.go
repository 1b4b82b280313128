// Package domain contains the core business entities and domain logic for the ShelfMark library.
package domain

// Book represents an ebook in a single owner's library partition.
//
// The identity portion (ContentHash, Title, Author, ...) is what gets
// published to relays; the local portion (LocalID, Progress, ...) never
// leaves this device. A book whose binary payload has not been fetched is a
// "ghost": metadata is known but HasBinaryData is false.
type Book struct {
	SyncState

	// Identity (publishable).
	ContentHash  string `json:"content_hash"`
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
	ISBN         string `json:"isbn,omitempty"`
	Year         string `json:"year,omitempty"`
	Description  string `json:"description,omitempty"`
	CoverImage   []byte `json:"cover_image,omitempty"` // small JPEG, fits the publish budget
	CoverPreview string `json:"cover_preview,omitempty"` // blurhash placeholder

	// Local (device-only).
	LocalID        string  `json:"local_id"`
	OwnerIdentity  string  `json:"owner_identity"`
	Progress       float64 `json:"progress"` // 0..100
	CurrentPage    int     `json:"current_page,omitempty"`
	TotalPages     int     `json:"total_pages,omitempty"`
	PositionMarker string  `json:"position_marker,omitempty"`
	HasBinaryData  bool    `json:"has_binary_data"`
}

// IsGhost reports whether this book has metadata but no local binary payload.
func (b *Book) IsGhost() bool {
	return !b.HasBinaryData
}

// ApplyRemoteMetadata overwrites the publishable metadata fields wholesale
// from a newer remote version, leaving all local-only fields untouched.
func (b *Book) ApplyRemoteMetadata(other *Book) {
	b.Title = other.Title
	b.Author = other.Author
	b.ISBN = other.ISBN
	b.Year = other.Year
	b.Description = other.Description
	if len(other.CoverImage) > 0 {
		b.CoverImage = other.CoverImage
		b.CoverPreview = other.CoverPreview
	}
}
