// Package server exposes a small local status API for the daemon: current
// state and schedule, recent cycle history, and a websocket stream of
// finished cycles.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"autoportal/internal/daemon"
	"autoportal/internal/models"
	"autoportal/internal/state"
	"autoportal/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// Server wraps HTTP serving of the status API.
type Server struct {
	httpServer   *http.Server
	status       *state.Store
	history      *storage.Store
	daemon       *daemon.Daemon
	hub          *Hub
	historyLimit int
}

// New creates a configured status server.
func New(addr string, status *state.Store, history *storage.Store, d *daemon.Daemon, hub *Hub) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux},
		status:       status,
		history:      history,
		daemon:       d,
		hub:          hub,
		historyLimit: 200,
	}
	s.registerRoutes(mux)
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		_ = s.httpServer.ListenAndServe()
	}()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/ws/events", s.handleEvents)
}

type statusResponse struct {
	State       state.Record         `json:"state"`
	Schedule    daemon.ScheduleState `json:"schedule"`
	GeneratedAt time.Time            `json:"generated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		State:       s.status.Load(),
		Schedule:    s.daemon.Schedule(),
		GeneratedAt: time.Now().UTC(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.historyLimit)
	cycles, err := s.history.RecentCycles(r.Context(), limit)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if cycles == nil {
		cycles = []models.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	// Consume reads only to observe the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
