package service

import (
	"github.com/rs/zerolog/log"
)

// Event types pushed to clients after a turn.
const (
	NotifyPhaseChanged      = "phase_changed"
	NotifyTurnResolved      = "turn_resolved"
	NotifyGameEnded         = "game_ended"
	NotifyInactivityWarning = "inactivity_warning"
	NotifyOrdersSubmitted   = "orders_submitted"
	NotifyVoteCast          = "vote_cast"
)

// Notifier sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Notifier interface {
	BroadcastGameEvent(gameID string, eventType string, data any)
	NotifyUser(userID string, eventType string, data any)
}

// NoopNotifier is a no-op implementation for testing or when WS is disabled.
type NoopNotifier struct{}

func (NoopNotifier) BroadcastGameEvent(string, string, any) {}
func (NoopNotifier) NotifyUser(string, string, any)         {}

// safeNotify runs a notification, logging instead of propagating a panic.
func safeNotify(gameID, eventType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("gameId", gameID).Str("event", eventType).
				Interface("panic", r).Msg("Notifier panicked")
		}
	}()
	fn()
}
