package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/usvsthem-notdev/driftq/internal/deadletter"
	"github.com/usvsthem-notdev/driftq/internal/queue"
)

// Server provides the ops/admin REST API. The queue itself is an in-process
// component; this surface exists for operators to enqueue registered job
// types, inspect stats, and work the dead letter queue.
type Server struct {
	queue  *queue.Queue
	router *chi.Mux
}

// NewServer creates a new REST server
func NewServer(q *queue.Queue) *Server {
	s := &Server{
		queue:  q,
		router: chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.enqueue)
		r.Delete("/jobs", s.clear)
		r.Get("/stats", s.stats)

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", s.listDeadLetters)
			r.Delete("/", s.clearDeadLetters)
			r.Post("/{id}/requeue", s.requeueDeadLetter)
		})
	})

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.health)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Request/Response types
type EnqueueRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	MaxRetries   int             `json:"max_retries,omitempty"`
	RetryDelayMs int64           `json:"retry_delay_ms,omitempty"`
}

type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

type ClearResponse struct {
	Discarded int `json:"discarded"`
}

type DeadLettersResponse struct {
	Entries []deadletter.Entry `json:"entries"`
}

type RequeueResponse struct {
	JobID string           `json:"job_id"`
	Entry deadletter.Entry `json:"entry"`
}

// Handlers
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var opts []queue.JobOption
	if req.MaxRetries > 0 {
		opts = append(opts, queue.WithMaxRetries(req.MaxRetries))
	}
	if req.RetryDelayMs > 0 {
		opts = append(opts, queue.WithRetryDelayBase(time.Duration(req.RetryDelayMs)*time.Millisecond))
	}

	// Only registered job types can be enqueued over HTTP; the handler is
	// resolved from the registry.
	jobID, err := s.queue.Enqueue(req.Type, []byte(req.Payload), nil, opts...)
	if err != nil {
		if errors.Is(err, queue.ErrMissingType) || errors.Is(err, queue.ErrMissingHandler) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to enqueue job")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, EnqueueResponse{JobID: jobID})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ClearResponse{Discarded: s.queue.Clear()})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.queue.GetStats())
}

func (s *Server) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	entries := s.queue.DeadLetters()
	if entries == nil {
		entries = []deadletter.Entry{}
	}
	respondJSON(w, http.StatusOK, DeadLettersResponse{Entries: entries})
}

func (s *Server) clearDeadLetters(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.ClearDeadLetters(); err != nil {
		log.Error().Err(err).Msg("failed to clear dead letters")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) requeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Resolve the handler before popping so an entry whose type has no
	// registered handler stays in the store instead of being lost.
	var handler queue.Handler
	for _, e := range s.queue.DeadLetters() {
		if e.ID == id {
			handler = s.queue.HandlerFor(e.Type)
			if handler == nil {
				respondError(w, http.StatusUnprocessableEntity,
					fmt.Sprintf("no handler registered for type %s", e.Type))
				return
			}
			break
		}
	}

	entry, err := s.queue.RequeueDeadLetter(id)
	if err != nil {
		if errors.Is(err, deadletter.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to requeue dead letter entry")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The store only pops the entry; re-enqueueing through the registry is
	// this caller's job.
	jobID, err := s.queue.Enqueue(entry.Type, entry.Payload, handler)
	if err != nil {
		log.Error().Err(err).Str("entry_id", id).Msg("failed to re-enqueue dead letter entry")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, RequeueResponse{JobID: jobID, Entry: entry})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
