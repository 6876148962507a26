package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"autoportal/internal/models"
)

const eventWriteTimeout = 5 * time.Second

// Hub fans finished cycles out to connected websocket clients. The daemon
// publishes; slow or dead clients are dropped, never waited on.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Publish sends the record to every connected client.
func (h *Hub) Publish(rec models.CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := conn.WriteJSON(rec); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
