package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/sesm/sesm/internal/journal"
	"github.com/sesm/sesm/internal/logger"
	"github.com/sesm/sesm/internal/memory"
	"github.com/sesm/sesm/internal/metrics"
)

// Server is the sesm HTTP API server.
type Server struct {
	mem        *memory.Store
	journal    *journal.DB
	metrics    *metrics.Metrics
	log        logger.Logger
	defaultTTL time.Duration
	validate   *validator.Validate
	router     chi.Router
	version    string
	started    time.Time
}

// Options carries the optional collaborators of a Server. Nil fields switch
// the matching endpoints off.
type Options struct {
	Journal    *journal.DB
	Metrics    *metrics.Metrics
	Logger     logger.Logger
	DefaultTTL time.Duration
}

// New creates a Server over the given memory store.
func New(mem *memory.Store, version string, opts Options) *Server {
	s := &Server{
		mem:        mem,
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		defaultTTL: opts.DefaultTTL,
		validate:   validator.New(),
		version:    version,
		started:    time.Now(),
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = memory.DefaultTTL
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(allowAllOrigins)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	r.Route("/memory", func(r chi.Router) {
		r.Post("/write", s.handleWrite)
		r.Get("/episodic", s.handleListEpisodic)
		r.Get("/knowledge", s.handleListKnowledge)
		r.Get("/all", s.handleListAll)
		r.Get("/{id}/history", s.handleHistory)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/*", spaHandler())

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.mem.Stats()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"items":   st.Total(),
		"journal": s.journal != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
