// Package api exposes the HTTP interface for the audit service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seoscope/seoscope/internal/audit"
	"github.com/seoscope/seoscope/internal/billing"
	"github.com/seoscope/seoscope/internal/config"
	"github.com/seoscope/seoscope/internal/metrics"
	"github.com/seoscope/seoscope/internal/ratelimit"
)

// Pinger reports readiness of a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the stores and the billing processor.
type Server struct {
	router  chi.Router
	jobs    audit.JobStore
	results audit.ResultStore
	ledger  audit.CreditLedger
	billing *billing.Processor
	ids     audit.IDGenerator
	clock   audit.Clock
	pinger  Pinger
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The rate limit
// counter and pinger may be nil.
func NewServer(
	jobs audit.JobStore,
	results audit.ResultStore,
	ledger audit.CreditLedger,
	billingProc *billing.Processor,
	ids audit.IDGenerator,
	clock audit.Clock,
	limiter ratelimit.Counter,
	pinger Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobs:    jobs,
		results: results,
		ledger:  ledger,
		billing: billingProc,
		ids:     ids,
		clock:   clock,
		pinger:  pinger,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}

		// Provider webhooks carry their own identity.
		r.Post("/webhooks/billing", s.billingWebhook)
		r.Post("/admin/credits/reset", s.adminResetCredits)

		r.Group(func(r chi.Router) {
			r.Use(identityMiddleware)
			r.Use(rateLimitMiddleware(limiter, cfg.Redis.RequestsPerMinute))

			r.Post("/accounts", s.createAccount)
			r.Post("/analyze", s.submitAnalysis)
			r.Get("/jobs/{job_id}", s.getJob)
			r.Get("/history", s.listResults)
			r.Get("/credits", s.getCredits)
			r.Post("/credits/consume", s.consumeCredits)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "dependencies unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
