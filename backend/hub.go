package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/api"
)

// wsClient is one websocket connection of a user.
type wsClient struct {
	userUUID string
	conn     *websocket.Conn
	send     chan api.Hint
}

// Hub tracks the open match hint connections per user.
type Hub struct {
	clientsByUser map[string]map[*wsClient]bool
	mu            sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*wsClient]bool),
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userUUID] == nil {
		h.clientsByUser[c.userUUID] = make(map[*wsClient]bool)
	}
	h.clientsByUser[c.userUUID][c] = true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userUUID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userUUID)
		}
	}
}

// sendToUser never blocks; a full buffer drops the hint.
func (h *Hub) sendToUser(userUUID string, hint api.Hint) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userUUID] {
		select {
		case c.send <- hint:
		default:
		}
	}
}

func (h *Hub) connected(userUUID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userUUID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The web frontend connects from its own dev origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var matchHub = newHub()

// GET /api/v1/ws/match
func wsMatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userUUID, ok := getUserIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade", zap.String("uuid", userUUID), zap.Error(err))
			return
		}

		client := &wsClient{
			userUUID: userUUID,
			conn:     conn,
			send:     make(chan api.Hint, 16),
		}
		matchHub.register(client)
		client.send <- api.Hint{Type: "info", Data: "connected"}

		go clientWriter(client)
		clientReader(client)
	}
}

// clientReader only keeps the connection alive; clients never send hints.
func clientReader(c *wsClient) {
	defer func() {
		matchHub.unregister(c)
		close(c.send)
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func clientWriter(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case hint, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(hint); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
