package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/quota"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

// NewServer creates a new API server. limiter may be nil.
func NewServer(cfg domain.ServerConfig, svc *analysis.Service, limiter *quota.Limiter, version string) *Server {
	handler := NewHandler(svc, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware())
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Probes skip tenancy and quota.
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(limiter.Middleware(tenantOf))

		r.Post("/detect", handler.Detect)
		r.Post("/quick", handler.Quick)
		r.Post("/chat", handler.Chat)
		r.Post("/project", handler.Project)

		r.Route("/detectors", func(r chi.Router) {
			r.Get("/", handler.ListDetectors)
			r.Get("/{id}", handler.GetDetector)
			r.Post("/{id}/analyze", handler.Analyze)
		})

		r.Route("/analyses", func(r chi.Router) {
			r.Get("/", handler.ListAnalyses)
			r.Get("/{id}", handler.GetAnalysis)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", handler.ListRules)
			r.Post("/", handler.CreateRule)
			r.Post("/reload", handler.ReloadRules)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		},
	}
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
