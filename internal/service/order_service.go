package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

// OrderService handles order, expense and vote submission.
type OrderService struct {
	store    repository.GameStore
	notifier Notifier
	m        *machiavelli.Map
}

// NewOrderService creates an OrderService.
func NewOrderService(store repository.GameStore, notifier Notifier) *OrderService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &OrderService{store: store, notifier: notifier, m: machiavelli.ItalyMap()}
}

// SubmitOrders validates and stores a player's orders and expenses for the
// current turn, replacing any earlier submission. Submitting resets the
// player's inactivity counter and reactivates an inactive player.
func (s *OrderService) SubmitOrders(ctx context.Context, gameID, userID string, sub model.OrderSubmission) ([]machiavelli.Order, error) {
	game, players, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Phase != machiavelli.PhaseOrders {
		return nil, ErrWrongPhase
	}
	player := playerForUser(players, userID)
	if player == nil {
		return nil, ErrNotInGame
	}
	if !player.IsAlive || player.Status == machiavelli.StatusEliminated {
		return nil, ErrPlayerNotActive
	}

	st := machiavelli.NewTurnState(s.m, game, players, nil)

	byUnit := make(map[machiavelli.UnitID]int)
	var orders []machiavelli.Order
	for _, o := range sub.Orders {
		u := st.Units[o.UnitID]
		if u == nil || u.Owner != player.ID {
			return nil, fmt.Errorf("%w: %s", ErrNotYourUnit, o.UnitID)
		}
		o.Player = player.ID
		o.Valid = false
		o.Downgraded = false
		o.Reason = ""
		if err := machiavelli.ValidateOrder(o, st); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOrder, err)
		}
		if i, dup := byUnit[o.UnitID]; dup {
			orders[i] = o
			continue
		}
		byUnit[o.UnitID] = len(orders)
		orders = append(orders, o)
	}

	expenses := make([]machiavelli.Expense, 0, len(sub.Expenses))
	for _, e := range sub.Expenses {
		e.Player = player.ID
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := machiavelli.ValidateExpense(e, st); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidExpense, err)
		}
		expenses = append(expenses, e)
	}

	updated := player.Clone()
	updated.HasSubmittedOrders = true
	updated.InactivityCounter = 0
	if updated.Status == machiavelli.StatusInactive {
		updated.Status = machiavelli.StatusActive
	}

	err = s.store.SaveSubmission(ctx, model.Submission{
		GameID:          gameID,
		Turn:            game.TurnNumber,
		ExpectedVersion: game.Version,
		Player:          updated,
		Orders:          orders,
		Expenses:        expenses,
	})
	if err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}

	log.Info().Str("gameId", gameID).Str("player", string(player.ID)).
		Int("orders", len(orders)).Int("expenses", len(expenses)).Msg("Orders submitted")
	safeNotify(gameID, NotifyOrdersSubmitted, func() {
		s.notifier.BroadcastGameEvent(gameID, NotifyOrdersSubmitted, map[string]any{"player": string(player.ID)})
	})
	return orders, nil
}

// CastVote records an active player's ballot on an inactive player. A later
// ballot from the same voter on the same target replaces the earlier one.
func (s *OrderService) CastVote(ctx context.Context, gameID, userID string, req model.VoteRequest) (*machiavelli.Vote, error) {
	game, players, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Phase == machiavelli.PhaseFinished || game.Phase == machiavelli.PhaseWaiting {
		return nil, ErrWrongPhase
	}
	voter := playerForUser(players, userID)
	if voter == nil {
		return nil, ErrNotInGame
	}
	if !voter.IsAlive || voter.Status != machiavelli.StatusActive {
		return nil, ErrPlayerNotActive
	}

	choice := machiavelli.VoteChoice(req.Choice)
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: unknown choice %q", ErrInvalidVote, req.Choice)
	}
	target := machiavelli.PlayerID(req.Target)
	if target == voter.ID {
		return nil, fmt.Errorf("%w: cannot vote on yourself", ErrInvalidVote)
	}
	var tp *machiavelli.Player
	for i := range players {
		if players[i].ID == target {
			tp = &players[i]
		}
	}
	if tp == nil || tp.Status != machiavelli.StatusInactive {
		return nil, fmt.Errorf("%w: %s is not an inactive player", ErrInvalidVote, req.Target)
	}

	v := machiavelli.Vote{ID: uuid.NewString(), Voter: voter.ID, Target: target, Choice: choice}
	if err := s.store.UpsertVote(ctx, gameID, v); err != nil {
		return nil, fmt.Errorf("save vote: %w", err)
	}

	log.Info().Str("gameId", gameID).Str("voter", string(voter.ID)).
		Str("target", string(target)).Str("choice", string(choice)).Msg("Vote cast")
	safeNotify(gameID, NotifyVoteCast, func() {
		s.notifier.BroadcastGameEvent(gameID, NotifyVoteCast, map[string]any{
			"voter":  string(voter.ID),
			"target": string(target),
		})
	})
	return &v, nil
}

func (s *OrderService) load(ctx context.Context, gameID string) (*machiavelli.Game, []machiavelli.Player, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("load game: %w", err)
	}
	if game == nil {
		return nil, nil, ErrGameNotFound
	}
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("load players: %w", err)
	}
	return game, players, nil
}

func playerForUser(players []machiavelli.Player, userID string) *machiavelli.Player {
	for i := range players {
		if players[i].UserID == userID {
			return &players[i]
		}
	}
	return nil
}
