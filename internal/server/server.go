// Package server exposes the submission and polling HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/moatazm17/PicDo-sub000/internal/export"
	"github.com/moatazm17/PicDo-sub000/internal/imaging"
	"github.com/moatazm17/PicDo-sub000/internal/pipeline"
	"github.com/moatazm17/PicDo-sub000/internal/quota"
	"github.com/moatazm17/PicDo-sub000/internal/store"
)

const (
	headerUserID = "X-User-Id"
	headerUILang = "X-UI-Lang"
)

// Enqueuer hands accepted submissions to the pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, task pipeline.Task) error
}

type Config struct {
	MaxUploadBytes int64
	Maintenance    bool
}

type Server struct {
	cfg      Config
	jobs     store.JobRepository
	users    store.UserRepository
	guard    *quota.Guard
	queue    Enqueuer
	exporter *export.Service
	logger   *slog.Logger
	mux      *http.ServeMux

	// decodable is swapped for a stub in tests.
	decodable func([]byte) bool
}

func New(cfg Config, jobs store.JobRepository, users store.UserRepository, guard *quota.Guard, queue Enqueuer, exporter *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	s := &Server{
		cfg:      cfg,
		jobs:     jobs,
		users:    users,
		guard:    guard,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		mux:      http.NewServeMux(),

		decodable: imaging.Decodable,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /jobs", s.handleSubmit)
	s.mux.HandleFunc("GET /jobs/check-limit", s.handleCheckLimit)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetStatus)
	s.mux.HandleFunc("PATCH /jobs/{id}", s.handleUpdateFields)
	s.mux.HandleFunc("POST /jobs/{id}/mark-action", s.handleMarkAction)
	s.mux.HandleFunc("POST /jobs/{id}/favorite", s.handleFavorite)
	s.mux.HandleFunc("DELETE /jobs/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /history/export", s.handleHistoryExport)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) Handler() http.Handler {
	return recoverMiddleware(s.logger, s.mux)
}
