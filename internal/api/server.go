package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/config"
	"github.com/JakeFAU/secavis-relay/internal/intake"
	"github.com/JakeFAU/secavis-relay/internal/pipeline"
	"github.com/JakeFAU/secavis-relay/internal/telemetry"
)

// Cookie and header names carrying the intake session.
const (
	TokenCookie  = "intake_token"
	UserCookie   = "intake_user_id"
	TokenHeader  = "X-Intake-Token"
	UserHeader   = "X-Intake-User"
	readyTimeout = 2 * time.Second
)

// Pipeline is the orchestrator surface used by the handlers.
type Pipeline interface {
	FetchAndRegister(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
	Purge(ctx context.Context) error
	Ready(ctx context.Context) error
	ForwardingEnabled() bool
}

// Authenticator resolves intake operator sessions.
type Authenticator interface {
	Authenticate(ctx context.Context, company, login, password string) (intake.Session, error)
}

// Server wires HTTP handlers to the pipeline.
type Server struct {
	router   chi.Router
	pipeline Pipeline
	auth     Authenticator
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. auth may be nil
// when the intake integration is disabled.
func NewServer(p Pipeline, auth Authenticator, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: p,
		auth:     auth,
		cfg:      cfg,
		logger:   logger.Named("api"),
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}

		r.Route("/v1", func(r chi.Router) {
			r.Get("/notices", s.lookupNotice)
			r.Post("/purge", s.purge)
			if s.forwarding() {
				r.Get("/search", s.searchAndForward)
				r.Post("/identification", s.identify)
			}
		})

		r.Get("/requete", s.lookupNotice)
		r.Get("/purge", s.purge)
		if s.forwarding() {
			r.Get("/recherche", s.searchAndForward)
			r.Post("/identification", s.identify)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) forwarding() bool {
	return s.auth != nil && s.pipeline.ForwardingEnabled()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.pipeline.Ready(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
