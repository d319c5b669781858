// Package server exposes the ingestion and reporting boundaries over
// HTTP/JSON. Transport concerns stop here: handlers validate shape, map
// core errors onto status codes, and delegate everything else to the
// service pipeline.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/buildtrace/internal/service"
	"github.com/ChuLiYu/buildtrace/internal/store"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Server is the HTTP front of the reporting service.
type Server struct {
	svc    *service.Service
	logger *slog.Logger
	router *chi.Mux
}

// New builds the server and its routes.
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/process", s.handleProcess)
	r.Get("/report/{job_id}", s.handleReport)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleProcess ingests a batch of snapshot submissions.
// POST /process
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var snaps []types.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snaps); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(snaps) == 0 {
		http.Error(w, "at least one snapshot is required", http.StatusBadRequest)
		return
	}

	stored, err := s.svc.Ingest(r.Context(), snaps)
	if err != nil {
		if errors.Is(err, store.ErrMalformedSnapshot) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("ingestion failed", "stored", stored, "error", err)
		http.Error(w, "failed to store job state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "Jobs accepted and state stored. Ready for reporting.",
		"stored": stored,
	})
}

// handleReport runs the diff pipeline for one job and returns the report.
// GET /report/{job_id}
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "job_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "job id must be a positive integer", http.StatusBadRequest)
		return
	}

	rep, err := s.svc.Report(r.Context(), types.JobID(id))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSnapshotNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, store.ErrStoreUnavailable):
			s.logger.Error("store unavailable", "job_id", id, "error", err)
			http.Error(w, "snapshot store unavailable", http.StatusServiceUnavailable)
		default:
			s.logger.Error("report failed", "job_id", id, "error", err)
			http.Error(w, "internal analysis failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// handleHealth reports store reachability.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Healthy(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "buildtrace",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
