package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/history"
	"github.com/andrestor94/pliegos-ai/internal/llm"
	"github.com/andrestor94/pliegos-ai/internal/pipeline"
)

// ReportStore is the read side of the report history.
type ReportStore interface {
	Get(ctx context.Context, id string) (*history.Record, error)
	List(ctx context.Context, limit int) ([]history.Record, error)
}

// Server is the HTTP API server for pliegos-ai.
type Server struct {
	router     chi.Router
	dispatcher *pipeline.Dispatcher
	reports    ReportStore
	stats      *llm.Stats
	log        *slog.Logger
	cfg        config.Config
}

// NewServer creates and configures the HTTP server. reports and stats may be
// nil; their endpoints then answer 503.
func NewServer(d *pipeline.Dispatcher, reports ReportStore, stats *llm.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		dispatcher: d,
		reports:    reports,
		stats:      stats,
		log:        log,
		cfg:        cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/analyze/{jobID}/status", s.handleAnalyzeStatus)
		r.Get("/api/analyze/{jobID}/report", s.handleJobReport)
		r.Get("/api/analyze/{jobID}/pdf", s.handleJobPDF)

		r.Get("/api/reports", s.handleListReports)
		r.Get("/api/reports/{id}", s.handleGetReport)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
