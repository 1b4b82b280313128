package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shelfmark/shelfmark-server/internal/contenthash"
	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/epub"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/id"
	"github.com/shelfmark/shelfmark-server/internal/media/covers"
	"github.com/shelfmark/shelfmark-server/internal/normalize"
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

// LibraryService manages the reader's own book partition. Reads can address
// any partition (the reader's or a spectated one); every mutation is pinned
// to the owner identity, so spectated data cannot be modified through this
// service at all.
type LibraryService struct {
	store    *store.Store
	identity relay.Identity
	logger   *slog.Logger
}

// NewLibraryService creates a new library service.
func NewLibraryService(store *store.Store, identity relay.Identity, logger *slog.Logger) *LibraryService {
	return &LibraryService{store: store, identity: identity, logger: logger}
}

// MetadataUpdate carries optional metadata edits. Nil fields are unchanged.
// The content hash is derived from the binary payload and can never be
// edited.
type MetadataUpdate struct {
	Title       *string
	Author      *string
	ISBN        *string
	Year        *string
	Description *string
}

// ImportBook ingests an EPUB into the owner's library.
//
// The content hash is computed over the raw bytes and becomes the book's
// universal identity. Importing a file whose hash matches an existing ghost
// completes that ghost in place, so annotations merged before the binary
// arrived attach seamlessly.
func (s *LibraryService) ImportBook(ctx context.Context, data []byte) (*domain.Book, error) {
	owner := s.identity.PublicKey()
	hash := contenthash.ComputeBytes(data)

	meta, err := epub.Parse(data)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetBookByHash(ctx, owner, hash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.HasBinaryData {
			return nil, domainerrors.AlreadyExists("this book is already in your library").
				WithDetails(map[string]string{"local_id": existing.LocalID})
		}
		return s.completeGhost(ctx, existing, meta, data)
	}

	book := &domain.Book{
		ContentHash:   hash,
		Title:         normalize.Title(meta.Title),
		Author:        normalize.Text(meta.Author),
		ISBN:          meta.ISBN,
		Year:          meta.Year,
		Description:   normalize.Printable(meta.Description),
		LocalID:       id.MustGenerate("bk"),
		OwnerIdentity: owner,
		TotalPages:    meta.SpineCount,
		HasBinaryData: true,
	}
	s.attachCover(book, meta.Cover)

	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, err
	}
	if err := s.store.PutBinary(ctx, owner, book.LocalID, data); err != nil {
		return nil, err
	}

	s.logger.Info("book imported",
		"local_id", book.LocalID, "title", book.Title, "content_hash", hash)
	return book, nil
}

// completeGhost fills in a metadata-only book with its binary payload. The
// ghost's identity fields already match the file by construction (the hash
// lookup found it), so local metadata wins and the file only fills gaps.
func (s *LibraryService) completeGhost(ctx context.Context, ghost *domain.Book, meta *epub.Metadata, data []byte) (*domain.Book, error) {
	owner := ghost.OwnerIdentity

	if ghost.Title == "" {
		ghost.Title = normalize.Title(meta.Title)
	}
	if ghost.Author == "" {
		ghost.Author = normalize.Text(meta.Author)
	}
	if ghost.ISBN == "" {
		ghost.ISBN = meta.ISBN
	}
	if ghost.Year == "" {
		ghost.Year = meta.Year
	}
	if ghost.Description == "" {
		ghost.Description = normalize.Printable(meta.Description)
	}
	if len(ghost.CoverImage) == 0 {
		s.attachCover(ghost, meta.Cover)
	}
	if ghost.TotalPages == 0 {
		ghost.TotalPages = meta.SpineCount
	}
	ghost.HasBinaryData = true

	if err := s.store.PutBinary(ctx, owner, ghost.LocalID, data); err != nil {
		return nil, err
	}
	if err := s.store.UpdateBook(ctx, ghost); err != nil {
		return nil, err
	}

	s.logger.Info("ghost book completed",
		"local_id", ghost.LocalID, "title", ghost.Title, "content_hash", ghost.ContentHash)
	return ghost, nil
}

// UploadBinary attaches a binary payload to an existing ghost book. The
// payload must hash to the book's content hash; anything else is rejected
// before a byte is stored.
func (s *LibraryService) UploadBinary(ctx context.Context, localID string, data []byte) (*domain.Book, error) {
	owner := s.identity.PublicKey()
	book, err := s.store.GetBook(ctx, owner, localID)
	if err != nil {
		return nil, err
	}
	if book.HasBinaryData {
		return nil, domainerrors.Conflict("book already has its file")
	}

	if err := contenthash.VerifyBytes(data, book.ContentHash); err != nil {
		return nil, err
	}

	meta, err := epub.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.completeGhost(ctx, book, meta, data)
}

// GetBook returns one book from any partition.
func (s *LibraryService) GetBook(ctx context.Context, owner, localID string) (*domain.Book, error) {
	return s.store.GetBook(ctx, owner, localID)
}

// GetBinary returns a book's raw file contents from any partition.
func (s *LibraryService) GetBinary(ctx context.Context, owner, localID string) ([]byte, error) {
	return s.store.GetBinary(ctx, owner, localID)
}

// ListBooks returns every book in a partition.
func (s *LibraryService) ListBooks(ctx context.Context, owner string) ([]*domain.Book, error) {
	return s.store.ListBooks(ctx, owner)
}

// UpdateProgress records reading position. Progress state is local-only and
// never participates in sync.
func (s *LibraryService) UpdateProgress(ctx context.Context, localID string, progress float64, currentPage int, positionMarker string) (*domain.Book, error) {
	if progress < 0 || progress > 100 {
		return nil, domainerrors.Validationf("progress must be within 0..100, got %v", progress)
	}

	owner := s.identity.PublicKey()
	book, err := s.store.GetBook(ctx, owner, localID)
	if err != nil {
		return nil, err
	}

	book.Progress = progress
	book.CurrentPage = currentPage
	book.PositionMarker = positionMarker

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateMetadata edits a book's publishable metadata. If the book has been
// published, the edit leaves it locally ahead until the next publish or sync.
func (s *LibraryService) UpdateMetadata(ctx context.Context, localID string, update MetadataUpdate) (*domain.Book, error) {
	owner := s.identity.PublicKey()
	book, err := s.store.GetBook(ctx, owner, localID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		title := normalize.Title(*update.Title)
		if title == "" {
			return nil, domainerrors.Validation("title cannot be empty")
		}
		book.Title = title
	}
	if update.Author != nil {
		book.Author = normalize.Text(*update.Author)
	}
	if update.ISBN != nil {
		book.ISBN = *update.ISBN
	}
	if update.Year != nil {
		book.Year = *update.Year
	}
	if update.Description != nil {
		book.Description = normalize.Printable(*update.Description)
	}

	if book.Published() {
		book.MarkPending()
	}

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book, its binary, and its annotations from the
// owner's partition. Purely local; any published metadata stays on the
// relays for other devices.
func (s *LibraryService) DeleteBook(ctx context.Context, localID string) error {
	owner := s.identity.PublicKey()
	if err := s.store.DeleteBook(ctx, owner, localID); err != nil {
		return err
	}
	s.logger.Info("book deleted", "local_id", localID)
	return nil
}

// attachCover processes and attaches a cover image. Cover failures never
// block an import.
func (s *LibraryService) attachCover(book *domain.Book, cover []byte) {
	if len(cover) == 0 {
		return
	}
	processed, err := covers.Process(cover)
	if err != nil {
		s.logger.Warn("cover processing failed, importing without cover",
			"title", book.Title, "error", err)
		return
	}
	book.CoverImage = processed.Image
	book.CoverPreview = processed.Preview
}
