// Package api provides the HTTP API server and handlers for the ShelfMark application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/config"
	"github.com/shelfmark/shelfmark-server/internal/http/response"
	"github.com/shelfmark/shelfmark-server/internal/ratelimit"
	"github.com/shelfmark/shelfmark-server/internal/store"
	"github.com/shelfmark/shelfmark-server/internal/validation"
)

// apiVersion reported in the OpenAPI document and health endpoint.
const apiVersion = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	store     *store.Store
	services  Services
	tokens    *auth.TokenService
	password  *auth.PasswordFile
	validator *validation.Validator
	limiter   *ratelimit.KeyedRateLimiter

	router *chi.Mux
	api    huma.API
	logger *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(cfg *config.Config, store *store.Store, services Services, tokens *auth.TokenService, password *auth.PasswordFile, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		services:  services,
		tokens:    tokens,
		password:  password,
		validator: validation.New(),
		// Login attempts per client address. Generous for humans, hostile
		// to brute force.
		limiter: ratelimit.New(1, 5),
		router:  chi.NewRouter(),
		logger:  logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig(cfg.Server.Name, apiVersion)
	humaConfig.DocsPath = "/docs"
	RegisterErrorHandler()
	s.api = humachi.New(s.router, humaConfig)

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		// The reader UI may be served from a different local origin.
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes registers every route. Huma operations handle the JSON API;
// binary streams (book files, covers) go through plain chi handlers.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	s.registerAuthRoutes()
	s.registerBookRoutes()
	s.registerAnnotationRoutes()
	s.registerSyncRoutes()
	s.registerSpectateRoutes()
	s.registerSearchRoutes()

	// Binary endpoints outside huma: these stream raw bytes.
	s.router.Group(func(r chi.Router) {
		r.Get("/api/v1/books/{id}/file", s.handleDownloadFile)
		r.Get("/api/v1/books/{id}/cover", s.handleGetCover)
	})
}

// handleHealthCheck returns server health status.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"version": apiVersion,
	}, s.logger)
}
