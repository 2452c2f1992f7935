package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/evaluator"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/ogulcanaydogan/pitchwatch/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Options configures the HTTP API.
type Options struct {
	// CheckRate and CheckBurst limit POST /api/v1/check per client address.
	CheckRate  float64
	CheckBurst int

	// TrustedProxies lists the peers whose X-Forwarded-For header is used to
	// identify the client. Empty means the remote address is always used.
	TrustedProxies []netip.Prefix

	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server exposes rule management, alert history and on-demand passes.
type Server struct {
	store   storage.Storage
	runner  evaluator.PassRunner
	limiter *RateLimiter
	keyFunc func(r *http.Request) string
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer creates an API server.
func NewServer(store storage.Storage, runner evaluator.PassRunner, logger *slog.Logger, opts Options) *Server {
	if opts.CheckRate <= 0 {
		opts.CheckRate = 1
	}
	if opts.CheckBurst <= 0 {
		opts.CheckBurst = 1
	}
	s := &Server{
		store:   store,
		runner:  runner,
		limiter: NewRateLimiter(rate.Limit(opts.CheckRate), opts.CheckBurst),
		keyFunc: ClientKeyFunc(opts.TrustedProxies),
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.routes(opts.Gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/rules", s.handleListRules)
	s.mux.HandleFunc("POST /api/v1/rules", s.handleCreateRule)
	s.mux.HandleFunc("GET /api/v1/rules/{id}", s.handleGetRule)
	s.mux.HandleFunc("PATCH /api/v1/rules/{id}", s.handleUpdateRule)
	s.mux.HandleFunc("DELETE /api/v1/rules/{id}", s.handleDeleteRule)
	s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.mux.Handle("POST /api/v1/check", RateLimitMiddleware(s.limiter, s.keyFunc)(http.HandlerFunc(s.handleCheck)))
	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		s.logger.Error("list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rules == nil {
		rules = []model.AlertRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in model.RuleInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rule := in.Rule()
	if err := s.store.CreateRule(ctx, &rule); err != nil {
		if errors.Is(err, model.ErrInvalidRule) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create rule", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("rule created", "rule", rule.ID, "metric", rule.MetricType)
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rule, err := s.store.GetRule(ctx, r.PathValue("id"))
	if err != nil {
		s.storeError(w, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type updateRuleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req updateRuleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	id := r.PathValue("id")
	if err := s.store.SetRuleEnabled(ctx, id, *req.Enabled); err != nil {
		s.storeError(w, "update rule", err)
		return
	}
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		s.storeError(w, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.DeleteRule(ctx, r.PathValue("id")); err != nil {
		s.storeError(w, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := model.HistoryFilter{
		RuleID: q.Get("rule_id"),
		Status: model.AlertStatus(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	history, err := s.store.ListHistory(ctx, filter)
	if err != nil {
		s.logger.Error("list history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if history == nil {
		history = []model.AlertHistory{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	result := s.runner.RunPass(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	s.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
