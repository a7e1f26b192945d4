// Package server provides the read-only HTTP surface of the daemon:
// status, recent sessions and events, a live MJPEG preview, and a
// websocket event feed.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/emiller/vigil/internal/capture"
	"github.com/emiller/vigil/internal/store"
)

// Status is the daemon snapshot served by /api/status.
type Status struct {
	State             string    `json:"state"`
	Uptime            string    `json:"uptime"`
	FramesCaptured    uint64    `json:"frames_captured"`
	Ticks             uint64    `json:"ticks"`
	LastTick          time.Time `json:"last_tick"`
	LastMagnitude     float64   `json:"last_magnitude"`
	LastRawMagnitude  float64   `json:"last_raw_magnitude"`
	SessionsCompleted uint64    `json:"sessions_completed"`
}

// Config holds the server configuration. Nil/zero fields disable their
// endpoints.
type Config struct {
	Store  *store.Store
	Slot   *capture.FrameSlot
	Status func() Status
	Logger *zap.SugaredLogger
}

// Server is the HTTP server for the daemon.
type Server struct {
	config Config
	mux    *http.ServeMux
	events *EventsHandler
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		events: NewEventsHandler(config.Logger),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Status != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
	}

	if s.config.Store != nil {
		s.mux.HandleFunc("/api/sessions", s.handleSessions)
		s.mux.HandleFunc("/api/events", s.handleEvents)
	}

	if s.config.Slot != nil {
		s.mux.Handle("/stream", NewStreamHandler(s.config.Slot))
	}

	s.mux.Handle("/ws/events", s.events)
}

// Events returns the websocket broadcast hub so the pipeline can push
// motion events into it.
func (s *Server) Events() *EventsHandler {
	return s.events
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.config.Status())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := s.config.Store.Sessions().Recent(queryLimit(r, 50))
	if err != nil {
		s.config.Logger.Errorw("listing sessions failed", "error", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	type sessionJSON struct {
		ID          string     `json:"id"`
		StartedAt   time.Time  `json:"started_at"`
		EndedAt     *time.Time `json:"ended_at,omitempty"`
		Frames      int        `json:"frames"`
		Destination string     `json:"destination"`
		CloseReason string     `json:"close_reason,omitempty"`
	}

	out := make([]sessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		j := sessionJSON{
			ID:          sess.ID,
			StartedAt:   sess.StartedAt,
			Frames:      sess.Frames,
			Destination: sess.Destination,
			CloseReason: sess.CloseReason,
		}
		if sess.EndedAt.Valid {
			t := sess.EndedAt.Time
			j.EndedAt = &t
		}
		out = append(out, j)
	}

	writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.config.Store.Events().Recent(queryLimit(r, 100))
	if err != nil {
		s.config.Logger.Errorw("listing events failed", "error", err)
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}

	type eventJSON struct {
		ID           int64     `json:"id"`
		SessionID    string    `json:"session_id,omitempty"`
		At           time.Time `json:"at"`
		Magnitude    float64   `json:"magnitude"`
		RawMagnitude float64   `json:"raw_magnitude"`
	}

	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		j := eventJSON{
			ID:           ev.ID,
			At:           ev.At,
			Magnitude:    ev.Magnitude,
			RawMagnitude: ev.RawMagnitude,
		}
		if ev.SessionID.Valid {
			j.SessionID = ev.SessionID.String
		}
		out = append(out, j)
	}

	writeJSON(w, out)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
