package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

func (s *Server) registerAnnotationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "upsert-annotation",
		Method:      http.MethodPut,
		Path:        "/api/v1/annotations",
		Summary:     "Create or replace an annotation",
		Description: "Writes the annotation at (content hash, position range). An occupied key is replaced; its sync lineage and thread links carry over.",
		Tags:        []string{"Annotations"},
	}, s.handleUpsertAnnotation)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-annotations",
		Method:      http.MethodGet,
		Path:        "/api/v1/annotations",
		Summary:     "List annotations",
		Description: "Lists a partition's annotations, optionally narrowed to one book by content hash.",
		Tags:        []string{"Annotations"},
	}, s.handleListAnnotations)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-annotation",
		Method:      http.MethodGet,
		Path:        "/api/v1/annotations/one",
		Summary:     "Get annotation",
		Tags:        []string{"Annotations"},
	}, s.handleGetAnnotation)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-annotation",
		Method:      http.MethodDelete,
		Path:        "/api/v1/annotations",
		Summary:     "Delete annotation",
		Description: "Removes the annotation locally. If it had been published, a tombstone is announced to the relays; a failed announce is retried on the next sync.",
		Tags:        []string{"Annotations"},
	}, s.handleDeleteAnnotation)

	huma.Register(s.api, huma.Operation{
		OperationID: "attach-annotation-thread",
		Method:      http.MethodPost,
		Path:        "/api/v1/annotations/threads",
		Summary:     "Link a chat thread",
		Description: "Attaches a chat thread ID to an annotation. Thread links stay local and survive remote merges.",
		Tags:        []string{"Annotations"},
	}, s.handleAttachThread)

	huma.Register(s.api, huma.Operation{
		OperationID: "publish-annotation",
		Method:      http.MethodPost,
		Path:        "/api/v1/annotations/publish",
		Summary:     "Publish annotation",
		Description: "Shares the annotation to the relay network. On relay failure it is marked pending and retried on the next sync.",
		Tags:        []string{"Annotations", "Sync"},
	}, s.handlePublishAnnotation)
}

// === DTOs ===

// AnnotationKeyRequest addresses one annotation.
type AnnotationKeyRequest struct {
	ContentHash   string `json:"content_hash" validate:"required,contenthash" doc:"Book content hash"`
	PositionRange string `json:"position_range" validate:"required,max=2048" doc:"Position range within the book"`
}

func (r AnnotationKeyRequest) key() domain.AnnotationKey {
	return domain.AnnotationKey{ContentHash: r.ContentHash, PositionRange: r.PositionRange}
}

// UpsertAnnotationRequest is the request body for an annotation write.
type UpsertAnnotationRequest struct {
	AnnotationKeyRequest
	Text  string `json:"text" validate:"required,max=10000" doc:"Highlighted passage text"`
	Color string `json:"color,omitempty" validate:"omitempty,oneof=yellow green blue pink" doc:"Highlight color"`
	Note  string `json:"note,omitempty" validate:"max=10000" doc:"Reader note (Markdown)"`
}

// UpsertAnnotationInput wraps an annotation write for huma.
type UpsertAnnotationInput struct {
	Authorization string `header:"Authorization"`
	Body          UpsertAnnotationRequest
}

// AnnotationOutput wraps one annotation for huma.
type AnnotationOutput struct {
	Body *domain.Annotation
}

// ListAnnotationsInput selects a partition and optional book.
type ListAnnotationsInput struct {
	Authorization string `header:"Authorization"`
	Owner         string `query:"owner" doc:"Partition to read; defaults to your own library"`
	ContentHash   string `query:"content_hash" doc:"Restrict to one book"`
}

// ListAnnotationsOutput wraps the annotation list for huma. Entries carry a
// derived display page when the position range encodes one.
type ListAnnotationsOutput struct {
	Body struct {
		Items []*service.AnnotationView `json:"items"`
		Total int                       `json:"total"`
	}
}

// GetAnnotationInput addresses one annotation in a partition.
type GetAnnotationInput struct {
	Authorization string `header:"Authorization"`
	Owner         string `query:"owner" doc:"Partition to read; defaults to your own library"`
	ContentHash   string `query:"content_hash" required:"true" doc:"Book content hash"`
	PositionRange string `query:"position_range" required:"true" doc:"Position range within the book"`
}

// AnnotationKeyInput wraps a key-only request body for huma.
type AnnotationKeyInput struct {
	Authorization string `header:"Authorization"`
	Body          AnnotationKeyRequest
}

// AttachThreadRequest links a chat thread to an annotation.
type AttachThreadRequest struct {
	AnnotationKeyRequest
	ThreadID string `json:"thread_id" validate:"required,max=128" doc:"Chat thread ID"`
}

// AttachThreadInput wraps a thread link for huma.
type AttachThreadInput struct {
	Authorization string `header:"Authorization"`
	Body          AttachThreadRequest
}

// === Handlers ===

func (s *Server) handleUpsertAnnotation(ctx context.Context, input *UpsertAnnotationInput) (*AnnotationOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	a, err := s.services.Annotation.Upsert(ctx, input.Body.key(),
		input.Body.Text, domain.HighlightColor(input.Body.Color), input.Body.Note)
	if err != nil {
		return nil, err
	}
	return &AnnotationOutput{Body: a}, nil
}

func (s *Server) handleListAnnotations(ctx context.Context, input *ListAnnotationsInput) (*ListAnnotationsOutput, error) {
	owner, err := s.resolveOwner(input.Authorization, input.Owner)
	if err != nil {
		return nil, err
	}

	var views []*service.AnnotationView
	if input.ContentHash != "" {
		views, err = s.services.Annotation.ListForBook(ctx, owner, input.ContentHash)
	} else {
		var all []*domain.Annotation
		all, err = s.services.Annotation.List(ctx, owner)
		if err == nil {
			views = make([]*service.AnnotationView, 0, len(all))
			for _, a := range all {
				views = append(views, &service.AnnotationView{Annotation: a})
			}
		}
	}
	if err != nil {
		return nil, err
	}

	out := &ListAnnotationsOutput{}
	out.Body.Items = views
	out.Body.Total = len(views)
	return out, nil
}

func (s *Server) handleGetAnnotation(ctx context.Context, input *GetAnnotationInput) (*AnnotationOutput, error) {
	owner, err := s.resolveOwner(input.Authorization, input.Owner)
	if err != nil {
		return nil, err
	}

	key := domain.AnnotationKey{ContentHash: input.ContentHash, PositionRange: input.PositionRange}
	a, err := s.services.Annotation.Get(ctx, owner, key)
	if err != nil {
		return nil, err
	}
	return &AnnotationOutput{Body: a}, nil
}

func (s *Server) handleDeleteAnnotation(ctx context.Context, input *AnnotationKeyInput) (*MessageOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	if err := s.services.Annotation.Delete(ctx, input.Body.key()); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "annotation deleted"}}, nil
}

func (s *Server) handleAttachThread(ctx context.Context, input *AttachThreadInput) (*AnnotationOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	a, err := s.services.Annotation.AttachThread(ctx, input.Body.key(), input.Body.ThreadID)
	if err != nil {
		return nil, err
	}
	return &AnnotationOutput{Body: a}, nil
}

func (s *Server) handlePublishAnnotation(ctx context.Context, input *AnnotationKeyInput) (*AnnotationOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	a, err := s.services.Sync.PublishAnnotation(ctx, input.Body.key())
	if err != nil {
		if a != nil {
			return nil, huma.Error502BadGateway("publish failed, annotation marked pending: " + err.Error())
		}
		return nil, err
	}
	return &AnnotationOutput{Body: a}, nil
}
