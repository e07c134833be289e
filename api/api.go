// Package api exposes the control-plane surface consumed by the CLI and
// any web client: submit/status/list/cancel/metrics/resource-usage/
// rate-limit-status/health, as an HTTP service built on chi.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/governor"
	"github.com/lordpython/videoforge/metrics"
	"github.com/lordpython/videoforge/processor"
	"github.com/lordpython/videoforge/ratelimit"
	"github.com/lordpython/videoforge/session"
)

var validate = validator.New()

// SubmitRequest is the validated request body for POST /v1/sessions.
type SubmitRequest struct {
	Prompt      string `json:"prompt" validate:"required,min=1"`
	DurationSec int    `json:"duration_sec" validate:"required,min=10,max=600"`
	Style       string `json:"style"`
	Voice       string `json:"voice"`
	Quality     string `json:"quality" validate:"omitempty,oneof=low medium high ultra"`
	User        string `json:"user"`
	Priority    string `json:"priority" validate:"omitempty,oneof=urgent high normal low"`
}

// Server wires the processor, session store, and rate limiter behind an
// HTTP router.
type Server struct {
	proc    *processor.Processor
	store   *session.Store
	limiter *ratelimit.Limiter
	logger  common.ILogger
	promReg *prometheus.Registry

	router chi.Router
}

// NewServer builds the router; serve it by passing Handler to an
// http.Server (or to httptest).
func NewServer(proc *processor.Processor, store *session.Store, limiter *ratelimit.Limiter, gov *governor.Governor, logger common.ILogger) *Server {
	if logger == nil {
		logger = common.NopLogger()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.New(proc, gov, limiter))

	s := &Server{proc: proc, store: store, limiter: limiter, logger: logger, promReg: reg}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, usable directly with net/http or
// httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleSubmit)
		r.Get("/sessions", s.handleList)
		r.Get("/sessions/{id}", s.handleGet)
		r.Post("/sessions/{id}/cancel", s.handleCancel)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/resources", s.handleResources)
		r.Get("/rate-limits/{service}", s.handleRateLimitStatus)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch common.KindOf(err) {
	case common.EErrorKind.NotFound():
		status = http.StatusNotFound
	case common.EErrorKind.InvalidArgument(), common.EErrorKind.InvalidState():
		status = http.StatusBadRequest
	case common.EErrorKind.QueueFull(), common.EErrorKind.ResourceExhausted():
		status = http.StatusServiceUnavailable
	case common.EErrorKind.RateLimited():
		status = http.StatusTooManyRequests
	case common.EErrorKind.Timeout():
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var quality common.QualityTier
	if req.Quality != "" {
		if err := quality.Parse(req.Quality); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quality"})
			return
		}
	}
	priority := common.EPriority.Normal()
	if req.Priority != "" {
		if err := priority.Parse(req.Priority); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid priority"})
			return
		}
	}

	jobReq := session.JobRequest{
		Prompt:      req.Prompt,
		DurationSec: req.DurationSec,
		Style:       req.Style,
		Voice:       req.Voice,
		Quality:     quality,
	}

	requestID, err := s.proc.Submit(jobReq, req.User, priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": requestID.String()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	status := s.proc.Status(id)
	if status.State == processor.ETaskState.NotFound() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	sess, err := s.store.Get(status.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filters := session.ListFilters{SubmitterID: r.URL.Query().Get("user")}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		var st common.SessionStatus
		if err := st.Parse(statusStr); err == nil {
			filters.Status = &st
		}
	}
	writeJSON(w, http.StatusOK, s.store.List(filters))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if !s.proc.Cancel(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.Metrics())
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proc.ResourceUsage())
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	status, ok := s.limiter.ServiceStatus(service)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown service"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"components": map[string]bool{
			"processor": true,
			"store":     true,
			"limiter":   true,
		},
	})
}
