package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/domain"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

func (s *Server) registerSpectateRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "enter-spectate",
		Method:      http.MethodPost,
		Path:        "/api/v1/spectate",
		Summary:     "Spectate another library",
		Description: "Fetches a target identity's public books and annotations into a read-only partition. A target with no public records is reported as not found.",
		Tags:        []string{"Spectate"},
	}, s.handleEnterSpectate)

	huma.Register(s.api, huma.Operation{
		OperationID: "spectate-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/spectate",
		Summary:     "Active spectate session",
		Tags:        []string{"Spectate"},
	}, s.handleSpectateSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "refresh-spectate",
		Method:      http.MethodPost,
		Path:        "/api/v1/spectate/sync",
		Summary:     "Refresh spectated partition",
		Tags:        []string{"Spectate"},
	}, s.handleSpectateSync)

	huma.Register(s.api, huma.Operation{
		OperationID: "exit-spectate",
		Method:      http.MethodDelete,
		Path:        "/api/v1/spectate",
		Summary:     "End spectate session",
		Description: "Ends the session. Cached data stays on disk for quick re-entry.",
		Tags:        []string{"Spectate"},
	}, s.handleExitSpectate)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-spectate-data",
		Method:      http.MethodDelete,
		Path:        "/api/v1/spectate/data/{target}",
		Summary:     "Clear a spectated partition",
		Description: "Deletes all cached data for the target identity and drops its history entry.",
		Tags:        []string{"Spectate"},
	}, s.handleClearSpectateData)

	huma.Register(s.api, huma.Operation{
		OperationID: "spectate-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/spectate/history",
		Summary:     "Spectate history",
		Description: "Lists previously spectated identities, most recent first.",
		Tags:        []string{"Spectate"},
	}, s.handleSpectateHistory)
}

// === DTOs ===

// EnterSpectateRequest is the request body for starting a session.
type EnterSpectateRequest struct {
	Target string   `json:"target" validate:"required,pubkey" doc:"Identity to spectate"`
	Relays []string `json:"relays,omitempty" validate:"max=16,dive,url" doc:"Relays to fetch from; defaults to the configured set"`
}

// EnterSpectateInput wraps the enter request for huma.
type EnterSpectateInput struct {
	Authorization string `header:"Authorization"`
	Body          EnterSpectateRequest
}

// SpectateViewOutput wraps a spectate view for huma.
type SpectateViewOutput struct {
	Body *service.SpectateView
}

// SpectateSessionOutput wraps the session lookup for huma.
type SpectateSessionOutput struct {
	Body struct {
		Active  bool                    `json:"active"`
		Session *domain.SpectateSession `json:"session,omitempty"`
	}
}

// ClearSpectateInput addresses one spectated partition.
type ClearSpectateInput struct {
	Authorization string `header:"Authorization"`
	Target        string `path:"target" doc:"Identity whose cached partition to delete"`
}

// SpectateHistoryOutput wraps the history list for huma.
type SpectateHistoryOutput struct {
	Body struct {
		Entries []domain.SpectateHistoryEntry `json:"entries"`
	}
}

// === Handlers ===

func (s *Server) handleEnterSpectate(ctx context.Context, input *EnterSpectateInput) (*SpectateViewOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	view, err := s.services.Spectate.Enter(ctx, input.Body.Target, input.Body.Relays)
	if err != nil {
		return nil, err
	}
	return &SpectateViewOutput{Body: view}, nil
}

func (s *Server) handleSpectateSession(ctx context.Context, input *AuthInput) (*SpectateSessionOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	session, err := s.services.Spectate.Session(ctx)
	if err != nil {
		return nil, err
	}

	out := &SpectateSessionOutput{}
	out.Body.Active = session != nil
	out.Body.Session = session
	return out, nil
}

func (s *Server) handleSpectateSync(ctx context.Context, input *AuthInput) (*SpectateViewOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	view, err := s.services.Spectate.Sync(ctx)
	if err != nil {
		return nil, err
	}
	return &SpectateViewOutput{Body: view}, nil
}

func (s *Server) handleExitSpectate(ctx context.Context, input *AuthInput) (*MessageOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	if err := s.services.Spectate.Exit(ctx); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "spectate session ended"}}, nil
}

func (s *Server) handleClearSpectateData(ctx context.Context, input *ClearSpectateInput) (*MessageOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	if err := s.services.Spectate.ClearData(ctx, input.Target); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "spectated partition cleared"}}, nil
}

func (s *Server) handleSpectateHistory(ctx context.Context, input *AuthInput) (*SpectateHistoryOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	entries, err := s.services.Spectate.History(ctx)
	if err != nil {
		return nil, err
	}

	out := &SpectateHistoryOutput{}
	if entries == nil {
		entries = []domain.SpectateHistoryEntry{}
	}
	out.Body.Entries = entries
	return out, nil
}
