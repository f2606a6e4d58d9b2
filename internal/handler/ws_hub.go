package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	GameID string `json:"game_id"`
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	games  map[string]bool // guarded by Hub.mu
}

func newWSConn(conn *websocket.Conn, userID string) *WSConn {
	return &WSConn{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufSize),
		games:  make(map[string]bool),
	}
}

type connSet map[*WSConn]struct{}

// Hub fans game events out to subscribed connections and user events out to
// every connection of that user.
type Hub struct {
	mu     sync.RWMutex
	conns  connSet
	byGame map[string]connSet
	byUser map[string]connSet
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		conns:  make(connSet),
		byGame: make(map[string]connSet),
		byUser: make(map[string]connSet),
	}
}

func addConn(index map[string]connSet, key string, c *WSConn) {
	if index[key] == nil {
		index[key] = make(connSet)
	}
	index[key][c] = struct{}{}
}

func removeConn(index map[string]connSet, key string, c *WSConn) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(index, key)
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	addConn(h.byUser, c.userID, c)
}

// Unregister removes a connection and its subscriptions, then closes its
// send channel. Unregistering twice is a no-op.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	removeConn(h.byUser, c.userID, c)
	for gameID := range c.games {
		removeConn(h.byGame, gameID, c)
	}
	c.games = nil
	close(c.send)
}

// Subscribe adds a connection to a game channel.
func (h *Hub) Subscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	c.games[gameID] = true
	addConn(h.byGame, gameID, c)
}

// Unsubscribe removes a connection from a game channel.
func (h *Hub) Unsubscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.games, gameID)
	removeConn(h.byGame, gameID, c)
}

// BroadcastToGame sends an event to all connections subscribed to a game.
func (h *Hub) BroadcastToGame(gameID string, event WSEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.publish(h.byGame[gameID], event)
}

// BroadcastToUser sends an event to every connection of one user.
func (h *Hub) BroadcastToUser(userID string, event WSEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.publish(h.byUser[userID], event)
}

// publish must be called with h.mu held.
func (h *Hub) publish(targets connSet, event WSEvent) {
	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("gameId", event.GameID).Str("type", event.Type).Msg("Failed to marshal WebSocket event")
		return
	}
	for c := range targets {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("gameId", event.GameID).Str("type", event.Type).
				Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// GameSubscriberCount returns the number of connections subscribed to a game.
func (h *Hub) GameSubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byGame[gameID])
}
