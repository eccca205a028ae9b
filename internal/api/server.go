package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docaudio/internal/config"
	"github.com/dgallion1/docaudio/internal/metrics"
	"github.com/dgallion1/docaudio/internal/pipeline"
	"github.com/dgallion1/docaudio/internal/synth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// JobQueue is the part of pipeline.Queue the handlers use.
type JobQueue interface {
	Stage(filename, title string, data []byte, s pipeline.Settings) (*pipeline.Job, error)
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
	List() []pipeline.JobSnapshot
	Delete(id string) error
	QueueDepth() int
}

// Server is the HTTP API for the audiobook job service.
type Server struct {
	router  chi.Router
	queue   JobQueue
	stats   *synth.Stats
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server. stats and m may be nil.
func NewServer(queue JobQueue, stats *synth.Stats, m *metrics.Metrics, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		queue:   queue,
		stats:   stats,
		metrics: m,
		log:     log,
		cfg:     cfg,
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
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/jobs", s.handleSubmit)
		r.Get("/api/jobs", s.handleListJobs)
		r.Get("/api/jobs/{jobID}/status", s.handleJobStatus)
		r.Get("/api/jobs/{jobID}/audio", s.handleJobAudio)
		r.Delete("/api/jobs/{jobID}", s.handleDeleteJob)
		r.Get("/api/stats/tts", s.handleTTSStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.queue.QueueDepth(),
	})
}
