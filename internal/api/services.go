package api

import (
	"github.com/shelfmark/shelfmark-server/internal/relay"
	"github.com/shelfmark/shelfmark-server/internal/search"
	"github.com/shelfmark/shelfmark-server/internal/service"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Identity   relay.Identity
	Library    *service.LibraryService
	Annotation *service.AnnotationService
	Sync       *service.SyncService
	Spectate   *service.SpectateService
	Search     *search.SearchIndex
}
