package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-insurance/harrier/internal/domain"
	"github.com/opensource-insurance/harrier/internal/lifecycle"
	"github.com/opensource-insurance/harrier/internal/predicate"
	"github.com/opensource-insurance/harrier/internal/premium"
	"github.com/opensource-insurance/harrier/internal/resolver"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *resolver.Engine, rates *premium.Store, manager *lifecycle.Manager, compiler *predicate.Compiler, reloader Reloader, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, rates, manager, compiler, reloader, version)
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

	// Underwriting
	router.Post("/underwrite", handler.Underwrite)
	router.Get("/decisions/{id}", handler.GetDecision)

	// Condition catalog
	router.Get("/conditions", handler.ListConditions)
	router.Post("/conditions", handler.CreateCondition)
	router.Get("/conditions/{code}", handler.GetCondition)

	// Product catalog
	router.Get("/products", handler.ListProducts)
	router.Post("/products", handler.CreateProduct)

	// Rule set management
	router.Get("/rulesets", handler.ListRuleSets)
	router.Post("/rulesets", handler.CreateRuleSet)
	router.Get("/rulesets/{id}", handler.GetRuleSet)
	router.Put("/rulesets/{id}/rules", handler.ReplaceRules)
	router.Post("/rulesets/{id}/submit", handler.SubmitRuleSet)
	router.Post("/rulesets/{id}/approve", handler.ApproveRuleSet)
	router.Post("/rulesets/{id}/reject", handler.RejectRuleSet)
	router.Post("/rulesets/{id}/revert", handler.RevertRuleSet)
	router.Post("/rulesets/reload", handler.ReloadRuleSets)

	// Coverage reporting
	router.Get("/coverage", handler.GetCoverage)
	router.Get("/coverage/{carrierID}", handler.GetCarrierCoverage)

	// Premium rates
	router.Put("/products/{id}/rates", handler.ReplaceRates)
	router.Get("/products/{id}/premium", handler.LookupPremium)
	router.Post("/rates/reload", handler.ReloadRates)

	// Rule generation
	router.Post("/generate/knockouts", handler.GenerateKnockouts)
	router.Post("/generate/age-bands", handler.GenerateAgeBands)

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
