package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/manager"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, mgr *manager.Manager, version string) *Server {
	handler := NewHandler(mgr, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Risk profiles
	router.Post("/risk-profiles", handler.CreateRiskProfile)
	router.Post("/risk-profiles/bulk", handler.BulkCreateRiskProfiles)
	router.Get("/risk-profiles", handler.ListRiskProfiles)
	router.Get("/risk-profiles/{productId}", handler.GetRiskProfile)
	router.Put("/risk-profiles/{productId}", handler.UpdateRiskProfile)

	// Risk assessment
	router.Post("/assessments", handler.AssessRisk)
	router.Post("/assessments/bulk", handler.BulkAssessRisk)

	// Compliance
	router.Post("/compliance/check", handler.CheckCompliance)
	router.Get("/compliance/{bookingId}", handler.GetComplianceStatus)
	router.Post("/compliance/{bookingId}/exempt", handler.ExemptBooking)
	router.Post("/compliance/{bookingId}/enforce", handler.TriggerEnforcement)

	// Regulations
	router.Post("/regulations/check", handler.CheckRegulation)
	router.Put("/regulations", handler.UpsertRegulation)
	router.Get("/regulations/{categoryId}/{countryId}", handler.GetRegulation)

	// Violations
	router.Post("/violations", handler.RecordViolation)
	router.Get("/violations", handler.ListViolations)
	router.Get("/violations/{id}", handler.GetViolation)
	router.Post("/violations/{id}/resolve", handler.ResolveViolation)

	// Signal rules
	router.Get("/signal-rules", handler.ListSignalRules)
	router.Post("/signal-rules", handler.CreateSignalRule)
	router.Post("/signal-rules/reload", handler.ReloadSignalRules)

	// Stats
	router.Get("/stats", handler.Stats)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
