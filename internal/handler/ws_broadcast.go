package handler

import "github.com/freeeve/machiavelli/internal/service"

var _ service.Notifier = (*Hub)(nil)

// BroadcastGameEvent implements service.Notifier using the WebSocket hub.
func (h *Hub) BroadcastGameEvent(gameID, eventType string, data any) {
	h.BroadcastToGame(gameID, WSEvent{Type: eventType, GameID: gameID, Data: data})
}

// NotifyUser implements service.Notifier. The event reaches every open
// connection of the user whether or not they subscribed to a game.
func (h *Hub) NotifyUser(userID, eventType string, data any) {
	h.BroadcastToUser(userID, WSEvent{Type: eventType, Data: data})
}
