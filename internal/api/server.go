// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/govsight/procurement-crawler/internal/config"
	"github.com/govsight/procurement-crawler/internal/scraper"
	"github.com/govsight/procurement-crawler/internal/tool"
)

// Server wires HTTP handlers to the stores, the queue and the fetch tool.
type Server struct {
	router    chi.Router
	jobStore  scraper.JobStore
	records   scraper.RecordStore
	queue     scraper.Queue
	fetchTool *tool.Fetcher
	idGen     scraper.IDGenerator
	clock     scraper.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore scraper.JobStore,
	records scraper.RecordStore,
	queue scraper.Queue,
	fetchTool *tool.Fetcher,
	idGen scraper.IDGenerator,
	clock scraper.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:  jobStore,
		records:   records,
		queue:     queue,
		fetchTool: fetchTool,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(5 * time.Minute))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/fetch", s.fetch)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/cancel", s.cancelJob)
			})
		})
		r.Get("/records/{record_id}", s.getRecord)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type jobRequest struct {
	UserID  string      `json:"user_id"`
	Type    string      `json:"type"`
	Targets []targetReq `json:"targets"`
}

type targetReq struct {
	URL     string `json:"url"`
	State   string `json:"state"`
	Capital string `json:"capital"`
	LinkID  string `json:"link_id"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.toJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := scraper.QueueItem{JobID: job.ID, Attempt: 1, Submitted: job.StartedAt.Unix()}
	if err := s.queue.Enqueue(queueCtx, item); err != nil {
		// Fail the job row so it does not rest at pending with no worker
		// ever picking it up.
		if failErr := s.jobStore.UpdateJobStatus(r.Context(), job.ID, scraper.JobStatusFailed,
			fmt.Sprintf("enqueue failed: %v", err)); failErr != nil {
			s.logger.Error("mark job failed after enqueue error",
				zap.String("job_id", job.ID), zap.Error(failErr))
		}
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("enqueue job: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

func (s *Server) toJob(req jobRequest) (scraper.ScrapeJob, error) {
	if req.UserID == "" {
		return scraper.ScrapeJob{}, errors.New("user_id required")
	}
	if len(req.Targets) == 0 {
		return scraper.ScrapeJob{}, errors.New("at least one target required")
	}
	jobType := scraper.JobType(req.Type)
	if req.Type == "" {
		jobType = scraper.JobTypeSingle
		if len(req.Targets) > 1 {
			jobType = scraper.JobTypeMultiple
		}
	}
	switch jobType {
	case scraper.JobTypeSingle, scraper.JobTypeMultiple, scraper.JobTypeAllApproved:
	default:
		return scraper.ScrapeJob{}, fmt.Errorf("unknown job type: %s", req.Type)
	}
	targets := make([]scraper.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
			return scraper.ScrapeJob{}, fmt.Errorf("invalid target url: %q", t.URL)
		}
		targets = append(targets, scraper.Target{URL: t.URL, State: t.State, Capital: t.Capital, LinkID: t.LinkID})
	}
	jobID, err := s.idGen.NewID()
	if err != nil {
		return scraper.ScrapeJob{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	return scraper.ScrapeJob{
		ID:        jobID,
		UserID:    req.UserID,
		Type:      jobType,
		Status:    scraper.JobStatusPending,
		TotalURLs: len(targets),
		Targets:   targets,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	jobs, err := s.jobStore.ListJobsByUser(r.Context(), userID, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := s.jobStore.CancelJob(r.Context(), jobID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(scraper.JobStatusCancelled),
		})
	case errors.Is(err, scraper.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		// Terminal-state cancels come back as "cannot cancel job with status: X".
		writeError(w, http.StatusConflict, err.Error())
	}
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "record_id")
	rec, err := s.records.GetRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	var req tool.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	resp, err := s.fetchTool.FetchWebpageContent(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
