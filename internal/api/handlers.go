package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seoscope/seoscope/internal/audit"
	"github.com/seoscope/seoscope/internal/billing"
	"github.com/seoscope/seoscope/internal/metrics"
)

type analyzeRequest struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

type createAccountRequest struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

type consumeRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.buildJob(UserID(r.Context()), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.jobs.Enqueue(r.Context(), job, s.cfg.Credits.JobCost)
	if errors.Is(err, audit.ErrInsufficientCredits) {
		metrics.ObserveConsume(false, s.cfg.Credits.JobCost)
		writeError(w, http.StatusPaymentRequired, "insufficient_credits")
		return
	}
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	metrics.ObserveConsume(true, s.cfg.Credits.JobCost)
	writeJSON(w, http.StatusAccepted, map[string]any{"job": created})
}

func (s *Server) buildJob(userID string, req analyzeRequest) (audit.Job, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return audit.Job{}, fmt.Errorf("url must be a valid http(s) URL")
	}

	typ := audit.AnalysisType(req.Type)
	if req.Type == "" {
		typ = audit.AnalysisTechnical
	}
	if !audit.ValidAnalysisType(typ) {
		return audit.Job{}, fmt.Errorf("unknown analysis type %q", req.Type)
	}

	mode := audit.FetchMode(req.Mode)
	if req.Mode == "" {
		mode = audit.FetchMode(s.cfg.Fetch.DefaultMode)
	}
	if !audit.ValidFetchMode(mode) {
		return audit.Job{}, fmt.Errorf("unknown fetch mode %q", req.Mode)
	}
	if mode == audit.FetchRendered && !s.cfg.Headless.Enabled {
		mode = audit.FetchSimple
	}

	id, err := s.ids.NewID()
	if err != nil {
		return audit.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	return audit.Job{
		ID:     id,
		UserID: userID,
		URL:    req.URL,
		Type:   typ,
		Mode:   mode,
	}, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Get(r.Context(), jobID, UserID(r.Context()))
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)

	results, err := s.results.ListByUser(r.Context(), UserID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	plan := audit.Plan(req.Plan)
	if req.Plan == "" {
		plan = audit.PlanFree
	}
	if !audit.ValidPlan(plan) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown plan %q", req.Plan))
		return
	}

	account := audit.CreditAccount{
		UserID:  UserID(r.Context()),
		Email:   req.Email,
		Plan:    plan,
		Balance: audit.PlanAllotments[plan],
	}
	if err := s.ledger.CreateAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	stored, err := s.ledger.Balance(r.Context(), account.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read account")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"account": stored})
}

func (s *Server) getCredits(w http.ResponseWriter, r *http.Request) {
	account, err := s.ledger.Balance(r.Context(), UserID(r.Context()))
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account})
}

func (s *Server) consumeCredits(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be > 0")
		return
	}

	ok, balance, err := s.ledger.Consume(r.Context(), UserID(r.Context()), req.Amount)
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to consume credits")
		return
	}
	metrics.ObserveConsume(ok, req.Amount)
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok, "balance": balance})
}

func (s *Server) billingWebhook(w http.ResponseWriter, r *http.Request) {
	var event billing.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.billing.Process(r.Context(), event); err != nil {
		s.logger.Error("billing webhook failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, "event rejected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (s *Server) adminResetCredits(w http.ResponseWriter, r *http.Request) {
	reset, err := s.ledger.ResetMonthly(r.Context(), audit.PlanAllotments)
	if err != nil {
		s.logger.Error("monthly reset failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Int("accounts_reset", reset),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts_reset": reset})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
