package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/service"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "run-sync",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync",
		Summary:     "Run a sync pass",
		Description: "Fetches the owner's records from the relays, reconciles them into the local partition, then retries pending publishes. Only one pass runs at a time.",
		Tags:        []string{"Sync"},
	}, s.handleRunSync)

	huma.Register(s.api, huma.Operation{
		OperationID: "sync-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/status",
		Summary:     "Sync status",
		Tags:        []string{"Sync"},
	}, s.handleSyncStatus)
}

// === DTOs ===

// SyncResultOutput wraps the outcome of one sync pass.
type SyncResultOutput struct {
	Body service.SyncResult
}

// SyncStatusOutput wraps the orchestrator state.
type SyncStatusOutput struct {
	Body service.SyncStatus
}

// === Handlers ===

func (s *Server) handleRunSync(ctx context.Context, input *AuthInput) (*SyncResultOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}

	result := s.services.Sync.Sync(ctx)
	if result.Error == "sync already in progress" {
		return nil, huma.Error409Conflict(result.Error)
	}
	return &SyncResultOutput{Body: result}, nil
}

func (s *Server) handleSyncStatus(_ context.Context, input *AuthInput) (*SyncStatusOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	return &SyncStatusOutput{Body: s.services.Sync.Status()}, nil
}
