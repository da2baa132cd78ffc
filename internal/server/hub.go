package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

const writeTimeout = 10 * time.Second

// HealthEvent is pushed to websocket subscribers on every health-state
// transition.
type HealthEvent struct {
	IsHealthy bool           `json:"is_healthy"`
	Issues    []shared.Issue `json:"issues"`
	At        time.Time      `json:"at"`
}

// Hub fans health transitions out to websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
}

// NewHub builds a health event hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:      logger,
		subscribers: make(map[*websocket.Conn]struct{}),
	}
}

// ServeWS upgrades the request and registers the connection as a
// subscriber until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.subscribers[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("health subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

	// Drain reads so close frames are processed; subscribers are push-only.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every subscriber, dropping connections
// that fail to accept it.
func (h *Hub) Broadcast(event HealthEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subscribers))
	for conn := range h.subscribers {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("dropping health subscriber", zap.Error(err))
			h.drop(conn)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.subscribers, conn)
	h.mu.Unlock()
	conn.Close()
}
