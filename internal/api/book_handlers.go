package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/http/response"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-books",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Lists the owner's library, or a spectated partition when owner is given.",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-book",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "import-book",
		Method:      http.MethodPost,
		Path:        "/api/v1/books/import",
		Summary:     "Import an EPUB",
		Description: "Uploads an EPUB file. Its SHA-256 digest becomes the book's universal identity; importing a file matching a ghost book completes that ghost.",
		Tags:        []string{"Books"},
	}, s.handleImportBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "upload-book-file",
		Method:      http.MethodPut,
		Path:        "/api/v1/books/{id}/file",
		Summary:     "Attach file to a ghost book",
		Description: "Uploads the binary payload for a metadata-only book. The payload must hash to the book's content hash.",
		Tags:        []string{"Books"},
	}, s.handleUploadFile)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-progress",
		Method:      http.MethodPut,
		Path:        "/api/v1/books/{id}/progress",
		Summary:     "Update reading progress",
		Tags:        []string{"Books"},
	}, s.handleUpdateProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-book",
		Method:      http.MethodPatch,
		Path:        "/api/v1/books/{id}",
		Summary:     "Edit book metadata",
		Tags:        []string{"Books"},
	}, s.handleUpdateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-book",
		Method:      http.MethodDelete,
		Path:        "/api/v1/books/{id}",
		Summary:     "Delete book",
		Description: "Removes the book, its file, and its annotations locally. Published metadata stays on the relays.",
		Tags:        []string{"Books"},
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "publish-book",
		Method:      http.MethodPost,
		Path:        "/api/v1/books/{id}/publish",
		Summary:     "Publish book metadata",
		Description: "Shares the book's metadata to the relay network. On relay failure the book is marked pending and retried on the next sync.",
		Tags:        []string{"Books", "Sync"},
	}, s.handlePublishBook)
}

// === DTOs ===

// BookResponse is the wire form of a book. The cover image itself is served
// from its own endpoint; only the BlurHash preview is inlined.
type BookResponse struct {
	LocalID        string   `json:"local_id"`
	ContentHash    string   `json:"content_hash"`
	Title          string   `json:"title"`
	Author         string   `json:"author,omitempty"`
	ISBN           string   `json:"isbn,omitempty"`
	Year           string   `json:"year,omitempty"`
	Description    string   `json:"description,omitempty"`
	CoverPreview   string   `json:"cover_preview,omitempty"`
	HasCover       bool     `json:"has_cover"`
	Ghost          bool     `json:"ghost"`
	Progress       float64  `json:"progress"`
	CurrentPage    int      `json:"current_page,omitempty"`
	TotalPages     int      `json:"total_pages,omitempty"`
	PositionMarker string   `json:"position_marker,omitempty"`
	IsPublic       bool     `json:"is_public"`
	SyncPending    bool     `json:"sync_pending,omitempty"`
	Relays         []string `json:"relays,omitempty"`
}

func toBookResponse(b *domain.Book) BookResponse {
	return BookResponse{
		LocalID:        b.LocalID,
		ContentHash:    b.ContentHash,
		Title:          b.Title,
		Author:         b.Author,
		ISBN:           b.ISBN,
		Year:           b.Year,
		Description:    b.Description,
		CoverPreview:   b.CoverPreview,
		HasCover:       len(b.CoverImage) > 0,
		Ghost:          b.IsGhost(),
		Progress:       b.Progress,
		CurrentPage:    b.CurrentPage,
		TotalPages:     b.TotalPages,
		PositionMarker: b.PositionMarker,
		IsPublic:       b.IsPublic,
		SyncPending:    b.SyncPending,
		Relays:         b.Relays,
	}
}

// ListBooksInput selects a partition to list.
type ListBooksInput struct {
	Authorization string `header:"Authorization"`
	Owner         string `query:"owner" doc:"Partition to read; defaults to your own library"`
}

// ListBooksOutput wraps the book list for huma.
type ListBooksOutput struct {
	Body struct {
		Items []BookResponse `json:"items"`
		Total int            `json:"total"`
	}
}

// BookIDInput addresses one book in a partition.
type BookIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book local ID"`
	Owner         string `query:"owner" doc:"Partition to read; defaults to your own library"`
}

// BookOutput wraps one book for huma.
type BookOutput struct {
	Body BookResponse
}

// ImportBookInput carries a raw EPUB payload.
type ImportBookInput struct {
	Authorization string `header:"Authorization"`
	RawBody       []byte `contentType:"application/epub+zip"`
}

// UploadFileInput carries a raw EPUB payload for an existing ghost.
type UploadFileInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book local ID"`
	RawBody       []byte `contentType:"application/epub+zip"`
}

// ProgressRequest is the request body for a progress update.
type ProgressRequest struct {
	Progress       float64 `json:"progress" validate:"gte=0,lte=100" doc:"Reading progress percentage"`
	CurrentPage    int     `json:"current_page,omitempty" validate:"gte=0" doc:"Current page"`
	PositionMarker string  `json:"position_marker,omitempty" validate:"max=2048" doc:"Opaque reader position marker"`
}

// ProgressInput wraps a progress update for huma.
type ProgressInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book local ID"`
	Body          ProgressRequest
}

// UpdateBookRequest is the request body for a metadata edit. Omitted fields
// are left unchanged; the content hash can never be edited.
type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=500" doc:"Book title"`
	Author      *string `json:"author,omitempty" validate:"omitempty,max=500" doc:"Book author"`
	ISBN        *string `json:"isbn,omitempty" validate:"omitempty,max=17" doc:"ISBN-10 or ISBN-13"`
	Year        *string `json:"year,omitempty" validate:"omitempty,max=4" doc:"Publication year"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000" doc:"Description (Markdown)"`
}

// UpdateBookInput wraps a metadata edit for huma.
type UpdateBookInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book local ID"`
	Body          UpdateBookRequest
}

// DeleteBookInput addresses one owned book.
type DeleteBookInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Book local ID"`
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*ListBooksOutput, error) {
	owner, err := s.resolveOwner(input.Authorization, input.Owner)
	if err != nil {
		return nil, err
	}

	books, err := s.services.Library.ListBooks(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := &ListBooksOutput{}
	out.Body.Items = make([]BookResponse, 0, len(books))
	for _, b := range books {
		out.Body.Items = append(out.Body.Items, toBookResponse(b))
	}
	out.Body.Total = len(books)
	return out, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookOutput, error) {
	owner, err := s.resolveOwner(input.Authorization, input.Owner)
	if err != nil {
		return nil, err
	}

	book, err := s.services.Library.GetBook(ctx, owner, input.ID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleImportBook(ctx context.Context, input *ImportBookInput) (*BookOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("Request body is empty")
	}

	book, err := s.services.Library.ImportBook(ctx, input.RawBody)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleUploadFile(ctx context.Context, input *UploadFileInput) (*BookOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("Request body is empty")
	}

	book, err := s.services.Library.UploadBinary(ctx, input.ID, input.RawBody)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleUpdateProgress(ctx context.Context, input *ProgressInput) (*BookOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	book, err := s.services.Library.UpdateProgress(ctx, input.ID,
		input.Body.Progress, input.Body.CurrentPage, input.Body.PositionMarker)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleUpdateBook(ctx context.Context, input *UpdateBookInput) (*BookOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	book, err := s.services.Library.UpdateMetadata(ctx, input.ID, service.MetadataUpdate{
		Title:       input.Body.Title,
		Author:      input.Body.Author,
		ISBN:        input.Body.ISBN,
		Year:        input.Body.Year,
		Description: input.Body.Description,
	})
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *DeleteBookInput) (*MessageOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	if err := s.services.Library.DeleteBook(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "book deleted"}}, nil
}

func (s *Server) handlePublishBook(ctx context.Context, input *DeleteBookInput) (*BookOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	book, err := s.services.Sync.PublishBook(ctx, input.ID)
	if err != nil {
		// The local record survives a failed publish; hand it back along
		// with the error status so the client can show the pending state.
		if book != nil {
			return nil, huma.Error502BadGateway("publish failed, book marked pending: " + err.Error())
		}
		return nil, err
	}
	return &BookOutput{Body: toBookResponse(book)}, nil
}

// === Binary endpoints (plain chi) ===

// handleDownloadFile streams a book's raw EPUB bytes.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	owner, err := s.resolveOwner(r.Header.Get("Authorization"), r.URL.Query().Get("owner"))
	if err != nil {
		response.Unauthorized(w, "Invalid or missing token", s.logger)
		return
	}

	data, err := s.services.Library.GetBinary(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/epub+zip")
	http.ServeContent(w, r, "book.epub", time.Time{}, bytes.NewReader(data))
}

// handleGetCover serves the stored cover JPEG.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	owner, err := s.resolveOwner(r.Header.Get("Authorization"), r.URL.Query().Get("owner"))
	if err != nil {
		response.Unauthorized(w, "Invalid or missing token", s.logger)
		return
	}

	book, err := s.services.Library.GetBook(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if len(book.CoverImage) == 0 {
		response.NotFound(w, "Book has no cover", s.logger)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(book.CoverImage); err != nil {
		s.logger.Warn("cover write failed", "error", err)
	}
}
