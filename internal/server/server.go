package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	masqotel "github.com/dativo-io/masquerade/internal/otel"
	"github.com/dativo-io/masquerade/internal/redact"
	"github.com/dativo-io/masquerade/internal/tenant"
)

const (
	defaultTimeout = 60 * time.Second
	redactTimeout  = 5 * time.Minute
	maxBodyBytes   = 10 << 20
)

// Server exposes the redaction engine over HTTP.
type Server struct {
	router      *chi.Mux
	engine      *redact.Engine
	apiKeys     map[string]string
	corsOrigins []string
	components  map[string]string
	tenants     *tenant.Manager
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithComponents reports component states (e.g. "ai": "disabled") on /health?detail=true.
func WithComponents(c map[string]string) Option {
	return func(s *Server) { s.components = c }
}

// WithTenantManager enables per-tenant rate limiting on authenticated routes.
func WithTenantManager(m *tenant.Manager) Option {
	return func(s *Server) { s.tenants = m }
}

// NewServer builds a Server. apiKeys maps API key -> tenant; an empty map
// disables authentication and every caller shares one namespace.
func NewServer(engine *redact.Engine, apiKeys map[string]string, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		engine:      engine,
		apiKeys:     apiKeys,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(masqotel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/formats", s.handleFormats)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.tenants))

		// Redaction waits on the AI backend; the handler sets its own deadline.
		r.Post("/v1/redact", s.handleRedact)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Post("/v1/aliases/resolve", s.handleResolve)
			r.Get("/v1/scopes", s.handleScopesList)
			r.Get("/v1/scopes/{id}/export", s.handleScopeExport)
			r.Get("/v1/scopes/{id}/stats", s.handleScopeStats)
			r.Delete("/v1/scopes/{id}", s.handleScopeClear)
		})
	})

	return r
}
