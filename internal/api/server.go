// Package api provides the HTTP API server and handlers for LikeShelf.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/likeshelf/likeshelf-server/internal/auth"
	"github.com/likeshelf/likeshelf-server/internal/config"
	"github.com/likeshelf/likeshelf-server/internal/http/response"
	"github.com/likeshelf/likeshelf-server/internal/sse"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store       store.Store
	services    *Services
	tokens      *auth.TokenService
	sseManager  *sse.Manager
	sseHandler  *sse.Handler
	syncLimiter *RateLimiter
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger
	now         func() time.Time
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	st store.Store,
	services *Services,
	tokens *auth.TokenService,
	sseManager *sse.Manager,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:      st,
		services:   services,
		tokens:     tokens,
		sseManager: sseManager,
		router:     chi.NewRouter(),
		logger:     logger,
		now:        time.Now,
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}
	if perMinute := cfg.RateLimit.SyncPerMinute; perMinute > 0 {
		s.syncLimiter = NewRateLimiter(perMinute, time.Minute, perMinute)
	}

	s.setupMiddleware(cfg.Server.CORSOrigins)

	humaConfig := huma.DefaultConfig("LikeShelf API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerSyncRoutes()
	s.registerLikeRoutes()
	s.registerCategoryRoutes()
	s.registerPreferencesRoutes()
	s.registerFeedRoutes()
	s.router.Get("/api/v1/events", s.handleEvents)

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "route not found", s.logger)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w, s.logger)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for OpenAPI generation.
func (s *Server) API() huma.API {
	return s.api
}

// Shutdown releases background resources owned by the server.
func (s *Server) Shutdown(_ context.Context) {
	if s.syncLimiter != nil {
		s.syncLimiter.Stop()
	}
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(authMiddleware(s.tokens))
}

// apiError converts a service error into a huma status error. Server
// failures are logged; their causes never reach the client.
func (s *Server) apiError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = newAPIError(http.StatusInternalServerError, "internal server error", err).(*APIError)
	}
	if apiErr.GetStatus() >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed",
			"request_id", middleware.GetReqID(ctx),
			"code", apiErr.Code,
			"error", err,
		)
	}
	return apiErr
}
