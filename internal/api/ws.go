package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/store"
)

const maxWSConnections = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is served from a different origin in development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSManager tracks dashboard WebSocket connections and pushes every store
// update to all of them.
type WSManager struct {
	connections map[*websocket.Conn]bool
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewWSManager(logger *logging.Logger) *WSManager {
	return &WSManager{
		connections: make(map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// Run consumes store updates and broadcasts them until ctx is done. The
// subscription is released on return.
func (m *WSManager) Run(ctx context.Context, st *store.Store) {
	updates, cancel := st.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(u)
			if err != nil {
				m.logger.Errorf("Marshal WebSocket update failed: %v", err)
				continue
			}
			m.Broadcast(payload)
		}
	}
}

// AddConnection registers a connection, rejecting past the limit.
func (m *WSManager) AddConnection(conn *websocket.Conn) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.connections) >= maxWSConnections {
		m.logger.Warnf("Max WebSocket connections reached (%d)", maxWSConnections)
		return false
	}
	m.connections[conn] = true
	m.logger.Infof("Added WebSocket connection (total: %d)", len(m.connections))
	return true
}

// RemoveConnection removes a connection.
func (m *WSManager) RemoveConnection(conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.connections, conn)
	m.logger.Infof("Removed WebSocket connection (remaining: %d)", len(m.connections))
}

// Broadcast sends a message to all connections; a write failure evicts the
// connection.
func (m *WSManager) Broadcast(message []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for conn := range m.connections {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			m.logger.Errorf("WebSocket write failed, dropping connection: %v", err)
			conn.Close()
			delete(m.connections, conn)
		}
	}
}

// ServeWS upgrades the request and parks it in the manager. The read loop
// only exists to detect the client going away.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.ws.AddConnection(conn) {
		conn.Close()
		return
	}

	go func() {
		defer func() {
			h.ws.RemoveConnection(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
