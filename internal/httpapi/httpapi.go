// Package httpapi exposes the episode-status surface named in spec
// §6 — the HTTP request-routing layer itself, and everything else a
// front-end service would need (auth, asset serving, the full REST
// surface), is out of scope per spec §1 and is not built here. This
// package serves what §6 specifies as the core's own interface — a GET
// snapshot of an episode row and a periodic status-frame stream — plus
// a GET /health check and, for a Server built with NewWithQueue, a
// POST /episodes endpoint that enqueues new requests. It is grounded
// on the donor's internal/server (chi router, JSON responses via
// respondJSON, health check).
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"newscast/internal/core"
	"newscast/internal/logger"
	"newscast/internal/persistence"
	"newscast/internal/queue"
)

// StatusFrame is one push-channel frame per spec §6: "{episode_id,
// status, stage, progress, error, timestamp}".
type StatusFrame struct {
	EpisodeID string    `json:"episode_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FrameInterval is how often the stream endpoint emits a frame,
// matching spec §6's "approximately every 2 seconds".
const FrameInterval = 2 * time.Second

// Server serves the episode-status HTTP surface.
type Server struct {
	router   *chi.Mux
	db       persistence.Database
	producer queue.Producer
}

// New builds a Server backed by db, exposing only the read surface
// named in spec §6. Use NewWithQueue to also accept new episode
// requests (spec §1 treats the actual broker transport as an external
// collaborator; this endpoint is this module's own front door for
// single-process deployments that have no separate queue service).
func New(db persistence.Database) *Server {
	return NewWithQueue(db, nil)
}

// NewWithQueue builds a Server that also accepts POST /episodes
// requests, enqueuing them on producer.
func NewWithQueue(db persistence.Database, producer queue.Producer) *Server {
	s := &Server{router: chi.NewRouter(), db: db, producer: producer}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/episodes/{id}/status", s.handleStatus)
	s.router.Get("/episodes/{id}/stream", s.handleStream)
	if producer != nil {
		s.router.Post("/episodes", s.handleCreate)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus implements spec §6's "HTTP GET returns the current
// episode row".
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := s.db.Episodes().Get(r.Context(), id)
	if err != nil || ep == nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "episode not found"})
		return
	}
	s.respondJSON(w, http.StatusOK, ep)
}

// handleStream implements spec §6's server-push channel: a frame every
// FrameInterval until the episode reaches a terminal status, encoded as
// newline-delimited JSON over a chunked response (no websocket/SSE
// dependency is wired in the retrieved pack, so this uses the simplest
// framing a plain HTTP client can read incrementally).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := logger.Stage("httpapi", map[string]string{"episode_id": id})

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(FrameInterval)
	defer ticker.Stop()

	for {
		frame, terminal, err := s.fetchFrame(r.Context(), id)
		if err != nil {
			log.Warn().Err(err).Msg("status frame fetch failed")
			return
		}
		if err := json.NewEncoder(w).Encode(frame); err != nil {
			return
		}
		flusher.Flush()
		if terminal {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// createRequest is the front-end → builder contract (spec §6) plus the
// one field the builder needs that the queue message itself omits: the
// owning user. A real front-end service inserts the pending episode row
// itself before enqueueing; this endpoint does both for a single-process
// deployment with no separate front-end.
type createRequest struct {
	EpisodeID       string   `json:"episode_id"`
	UserID          string   `json:"user_id"`
	Subcategories   []string `json:"subcategories"`
	DurationMinutes int      `json:"duration_minutes"`
	CustomTags      []string `json:"custom_tags"`
}

// handleCreate implements the idempotent-on-episode_id contract: a
// re-delivered episode_id that already has a row is not recreated, only
// re-enqueued if it is not already terminal (spec §6).
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.EpisodeID == "" {
		req.EpisodeID = uuid.NewString()
	}

	existing, err := s.db.Episodes().Get(r.Context(), req.EpisodeID)
	if err == nil && existing != nil {
		if existing.Status == core.StatusCompleted || existing.Status == core.StatusFailed {
			s.respondJSON(w, http.StatusOK, existing)
			return
		}
	} else {
		now := time.Now().UTC()
		ep := &core.Episode{
			ID:              req.EpisodeID,
			UserID:          req.UserID,
			Subcategories:   req.Subcategories,
			CustomTags:      req.CustomTags,
			DurationMinutes: req.DurationMinutes,
			Status:          core.StatusPending,
			Stage:           "pending",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.db.Episodes().Create(r.Context(), ep); err != nil {
			s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create episode"})
			return
		}
	}

	err = s.producer.Enqueue(r.Context(), queue.EpisodeRequest{
		EpisodeID:       req.EpisodeID,
		Subcategories:   req.Subcategories,
		DurationMinutes: req.DurationMinutes,
		CustomTags:      req.CustomTags,
	})
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue episode request"})
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"episode_id": req.EpisodeID, "status": string(core.StatusPending)})
}

func (s *Server) fetchFrame(ctx context.Context, id string) (StatusFrame, bool, error) {
	ep, err := s.db.Episodes().Get(ctx, id)
	if err != nil {
		return StatusFrame{}, true, err
	}
	if ep == nil {
		return StatusFrame{}, true, fmt.Errorf("episode %q not found", id)
	}
	frame := StatusFrame{
		EpisodeID: ep.ID,
		Status:    string(ep.Status),
		Stage:     ep.Stage,
		Progress:  ep.Progress,
		Error:     ep.ErrorMessage,
		Timestamp: time.Now(),
	}
	terminal := ep.Status == core.StatusCompleted || ep.Status == core.StatusFailed
	return frame, terminal, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
