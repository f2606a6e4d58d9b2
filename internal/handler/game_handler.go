package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/auth"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

// turnAPI is the part of service.TurnService the game endpoints use.
type turnAPI interface {
	gameReader
	ForceAdvance(ctx context.Context, gameID, userID string) error
	History(ctx context.Context, gameID string) ([]machiavelli.HistoryEntry, error)
}

// GameHandler serves game state, history and the creator's force-advance.
type GameHandler struct {
	turns turnAPI
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(turns turnAPI) *GameHandler {
	return &GameHandler{turns: turns}
}

// gameView is the public shape of a game. Orders stay private until resolved.
type gameView struct {
	*machiavelli.Game
	Players []machiavelli.Player `json:"players"`
}

// GetGame handles GET /api/v1/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	g, players, err := h.turns.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if players == nil {
		players = []machiavelli.Player{}
	}
	writeJSON(w, http.StatusOK, gameView{Game: g, Players: players})
}

// History handles GET /api/v1/games/{id}/history
func (h *GameHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.turns.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ForceAdvance handles POST /api/v1/games/{id}/advance
func (h *GameHandler) ForceAdvance(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.turns.ForceAdvance(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	log.Info().Str("gameId", gameID).Str("userId", userID).Msg("Turn force-advanced")

	g, _, err := h.turns.GetGame(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"turn":     g.TurnNumber,
		"season":   g.Season,
		"year":     g.Year,
		"phase":    g.Phase,
		"deadline": g.PhaseDeadline,
	})
}
