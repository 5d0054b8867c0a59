package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/avelar-dev/medikit/internal/notify"
)

// Hub broadcasts fired alerts to every connected WebSocket client. It
// implements notify.Sink so the alert engine can treat it like any
// other delivery channel.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	logger *zap.Logger
	closed bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Deliver implements notify.Sink.
func (h *Hub) Deliver(_ context.Context, alert notify.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("WebSocket write failed, dropping client", zap.Error(err))
			conn.Close()
			delete(h.conns, conn)
		}
	}
	return nil
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every client connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

// handleConn keeps a client registered until its read loop ends.
func (h *Hub) handleConn(conn *websocket.Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conns[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Clients only listen; reads just detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
