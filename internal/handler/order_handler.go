package handler

import (
	"context"
	"net/http"

	"github.com/freeeve/machiavelli/internal/auth"
	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

// orderAPI is the part of service.OrderService the order endpoints use.
type orderAPI interface {
	SubmitOrders(ctx context.Context, gameID, userID string, sub model.OrderSubmission) ([]machiavelli.Order, error)
	CastVote(ctx context.Context, gameID, userID string, req model.VoteRequest) (*machiavelli.Vote, error)
}

// OrderHandler handles order, expense and vote submission.
type OrderHandler struct {
	orders orderAPI
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders orderAPI) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// SubmitOrders handles POST /api/v1/games/{id}/orders
func (h *OrderHandler) SubmitOrders(w http.ResponseWriter, r *http.Request) {
	var req model.OrderSubmission
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orders, err := h.orders.SubmitOrders(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []machiavelli.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// CastVote handles POST /api/v1/games/{id}/votes
func (h *OrderHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req model.VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" || req.Choice == "" {
		writeError(w, http.StatusBadRequest, "target_player_id and choice are required")
		return
	}

	vote, err := h.orders.CastVote(r.Context(), r.PathValue("id"), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}
