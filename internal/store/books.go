package store

import (
	"context"
	"errors"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// CreateBook stores a new book in its owner's partition and indexes it for search.
// Returns ErrAlreadyExists when the local ID or content hash is already taken
// within the partition.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if book.LocalID == "" {
		return ErrInvalidKey
	}
	if err := s.Books.Create(ctx, book.OwnerIdentity, book.LocalID, book); err != nil {
		return err
	}

	b := *book
	s.indexAsync(func(ctx context.Context) error {
		return s.searchIndexer.IndexBook(ctx, &b)
	})
	return nil
}

// GetBook retrieves a book by local ID within the owner's partition.
func (s *Store) GetBook(ctx context.Context, owner, localID string) (*domain.Book, error) {
	return s.Books.Get(ctx, owner, localID)
}

// GetBookByHash retrieves a book by content hash within the owner's partition.
// This is the de-duplication and ghost lookup used by the reconciler.
func (s *Store) GetBookByHash(ctx context.Context, owner, contentHash string) (*domain.Book, error) {
	return s.Books.GetByIndex(ctx, owner, "hash", contentHash)
}

// UpdateBook persists changes to an existing book and refreshes its search document.
func (s *Store) UpdateBook(ctx context.Context, book *domain.Book) error {
	if err := s.Books.Update(ctx, book.OwnerIdentity, book.LocalID, book); err != nil {
		return err
	}

	b := *book
	s.indexAsync(func(ctx context.Context) error {
		return s.searchIndexer.IndexBook(ctx, &b)
	})
	return nil
}

// DeleteBook removes a book, its binary payload, and its annotations from the
// owner's partition. Idempotent.
func (s *Store) DeleteBook(ctx context.Context, owner, localID string) error {
	book, err := s.Books.Get(ctx, owner, localID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.Books.Delete(ctx, owner, localID); err != nil {
		return err
	}
	if err := s.DeleteBinary(ctx, owner, localID); err != nil {
		return err
	}
	if err := s.DeleteAnnotationsForBook(ctx, owner, book.ContentHash); err != nil {
		return err
	}

	s.indexAsync(func(ctx context.Context) error {
		return s.searchIndexer.DeleteBook(ctx, owner, localID)
	})
	return nil
}

// ListBooks returns all books in the owner's partition.
func (s *Store) ListBooks(ctx context.Context, owner string) ([]*domain.Book, error) {
	books := make([]*domain.Book, 0)
	for book, err := range s.Books.List(ctx, owner) {
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}
