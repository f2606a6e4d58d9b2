package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrNotCreator      = errors.New("only the creator can force the turn")
	ErrNotInGame       = errors.New("you are not in this game")
	ErrWrongPhase      = errors.New("action not allowed in the current phase")
	ErrNotYourUnit     = errors.New("unit does not belong to you")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrInvalidExpense  = errors.New("invalid expense")
	ErrInvalidVote     = errors.New("invalid vote")
	ErrPlayerNotActive = errors.New("player is not active")
)

const defaultLeaseTTL = 2 * time.Minute

// TurnService orchestrates turn resolution: loading a game, running the
// engine, committing the result atomically, and rescheduling the deadline.
type TurnService struct {
	store    repository.GameStore
	cache    repository.TurnCache
	notifier Notifier
	m        *machiavelli.Map
	newDice  func() machiavelli.Roller
	leaseTTL time.Duration
	now      func() time.Time

	// gameLocks serializes resolution of one game within this process.
	// The keyspace listener, poller and force-advance can all fire at once.
	gameLocks sync.Map
}

// NewTurnService creates a TurnService. A nil cache disables the cross-worker
// lease and deadline timers; a nil notifier drops notifications.
func NewTurnService(store repository.GameStore, cache repository.TurnCache, notifier Notifier) *TurnService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &TurnService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		m:        machiavelli.ItalyMap(),
		newDice:  func() machiavelli.Roller { return machiavelli.NewRoller(0) },
		leaseTTL: defaultLeaseTTL,
		now:      time.Now,
	}
}

// SetDice replaces the dice source used for each resolution.
func (s *TurnService) SetDice(newDice func() machiavelli.Roller) {
	s.newDice = newDice
}

// SeededDice returns a dice factory for SetDice. A non-zero seed makes every
// roll of a process reproducible; zero seeds each turn from the clock.
func SeededDice(seed int64) func() machiavelli.Roller {
	if seed == 0 {
		return func() machiavelli.Roller { return machiavelli.NewRoller(0) }
	}
	var mu sync.Mutex
	master := rand.New(rand.NewSource(seed))
	return func() machiavelli.Roller {
		mu.Lock()
		defer mu.Unlock()
		return machiavelli.NewRoller(master.Int63() | 1)
	}
}

// SetLeaseTTL sets how long a resolution lease is held before it lapses.
func (s *TurnService) SetLeaseTTL(ttl time.Duration) {
	if ttl > 0 {
		s.leaseTTL = ttl
	}
}

func (s *TurnService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ResolveTurn is the scheduler entry point. It does nothing until the
// game's phase deadline has passed.
func (s *TurnService) ResolveTurn(ctx context.Context, gameID string) error {
	return s.advance(ctx, gameID, "")
}

// ForceAdvance resolves the current phase immediately. Only the game's
// creator may force it.
func (s *TurnService) ForceAdvance(ctx context.Context, gameID, userID string) error {
	return s.advance(ctx, gameID, userID)
}

// GetGame returns a game and its players.
func (s *TurnService) GetGame(ctx context.Context, gameID string) (*machiavelli.Game, []machiavelli.Player, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("load game: %w", err)
	}
	if g == nil {
		return nil, nil, ErrGameNotFound
	}
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("load players: %w", err)
	}
	return g, players, nil
}

// History returns the resolved turns of a game, oldest first.
func (s *TurnService) History(ctx context.Context, gameID string) ([]machiavelli.HistoryEntry, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return s.store.ListHistory(ctx, gameID)
}

// advance resolves or opens the current phase. forcedBy is the user forcing
// the advance, or empty for deadline-driven calls.
func (s *TurnService) advance(ctx context.Context, gameID, forcedBy string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	if s.cache != nil {
		token, err := s.cache.AcquireLease(ctx, gameID, s.leaseTTL)
		if err != nil {
			return fmt.Errorf("acquire lease: %w", err)
		}
		defer func() {
			if err := s.cache.ReleaseLease(context.WithoutCancel(ctx), gameID, token); err != nil {
				log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to release resolution lease")
			}
		}()
	}

	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}
	if game == nil {
		return ErrGameNotFound
	}
	forced := forcedBy != ""
	if forced && game.CreatorID != forcedBy {
		return ErrNotCreator
	}

	now := s.now()
	switch game.Phase {
	case machiavelli.PhaseFinished:
		if forced {
			return machiavelli.ErrGameFinished
		}
		log.Info().Str("gameId", gameID).Msg("Skipping resolution for finished game")
		return nil
	case machiavelli.PhaseDiplomatic, machiavelli.PhaseOrders:
	default:
		if forced {
			return ErrWrongPhase
		}
		log.Info().Str("gameId", gameID).Str("phase", string(game.Phase)).Msg("Skipping resolution, game not running")
		return nil
	}

	if !forced && now.Before(game.PhaseDeadline) {
		log.Debug().Str("gameId", gameID).Time("deadline", game.PhaseDeadline).Msg("Phase deadline not yet reached, skipping")
		return nil
	}

	if game.Phase == machiavelli.PhaseDiplomatic {
		return s.openOrders(ctx, game, now)
	}
	return s.resolveOrders(ctx, game, now, forced)
}

// openOrders ends the diplomatic window without resolving anything.
func (s *TurnService) openOrders(ctx context.Context, game *machiavelli.Game, now time.Time) error {
	expected := game.Version
	machiavelli.OpenOrders(game, now)
	commit := model.TurnCommit{Game: game, ExpectedVersion: expected, ExpectedSubmissions: game.Submissions}
	if err := s.store.CommitTurn(ctx, commit); err != nil {
		return fmt.Errorf("commit phase change: %w", err)
	}
	s.setTimer(ctx, game.ID, game.PhaseDeadline)

	log.Info().Str("gameId", game.ID).Int("turn", game.TurnNumber).
		Time("deadline", game.PhaseDeadline).Msg("Diplomatic phase ended, orders open")
	s.broadcast(game.ID, NotifyPhaseChanged, phaseData(game))
	return nil
}

func (s *TurnService) resolveOrders(ctx context.Context, game *machiavelli.Game, now time.Time, forced bool) error {
	players, err := s.store.ListPlayers(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("load players: %w", err)
	}
	orders, err := s.store.ListOrders(ctx, game.ID, game.TurnNumber)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	expenses, err := s.store.ListExpenses(ctx, game.ID, game.TurnNumber)
	if err != nil {
		return fmt.Errorf("load expenses: %w", err)
	}
	votes, err := s.store.ListVotes(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("load votes: %w", err)
	}

	log.Info().Str("gameId", game.ID).Int("turn", game.TurnNumber).
		Str("season", string(game.Season)).Int("year", game.Year).
		Int("orders", len(orders)).Int("expenses", len(expenses)).Int("votes", len(votes)).
		Bool("forced", forced).Msg("Resolving turn")

	started := phaseData(game)
	started["phase"] = string(machiavelli.PhaseResolution)
	s.broadcast(game.ID, NotifyPhaseChanged, started)

	r := machiavelli.NewResolver(s.m, s.newDice(), uuid.NewString)
	r.Now = func() time.Time { return now }
	r.Logger = log.Logger
	res, err := r.ResolveTurn(machiavelli.TurnInput{
		Game:     game,
		Players:  players,
		Orders:   orders,
		Expenses: expenses,
		Votes:    votes,
	})
	if err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}

	commit := model.TurnCommit{
		Game:                res.Game,
		ExpectedVersion:     game.Version,
		ExpectedSubmissions: game.Submissions,
		Players:             res.Players,
		ResolvedTurn:        game.TurnNumber,
		Orders:              res.Orders,
		History:             &res.History,
		DeleteVoteIDs:       res.ProcessedVotes,
	}
	if err := s.store.CommitTurn(ctx, commit); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}

	next := res.Game
	if res.Finished() {
		s.clearTimer(ctx, next.ID)
		log.Info().Str("gameId", next.ID).Str("victoryType", string(next.VictoryType)).
			Interface("winners", next.Winners).Msg("Game won")
	} else {
		s.setTimer(ctx, next.ID, next.PhaseDeadline)
		log.Info().Str("gameId", next.ID).Int("turn", next.TurnNumber).
			Str("season", string(next.Season)).Int("year", next.Year).
			Str("phase", string(next.Phase)).Time("deadline", next.PhaseDeadline).
			Int("unitCount", len(next.Units)).Msg("Game advanced to next turn")
	}

	s.broadcast(next.ID, NotifyTurnResolved, map[string]any{
		"turn":    res.History.TurnNumber,
		"season":  string(res.History.Season),
		"year":    res.History.Year,
		"summary": res.History.Summary,
	})
	for _, w := range res.Warnings {
		if w.UserID == "" {
			continue
		}
		data := map[string]any{"player": string(w.Player), "strikes": w.Strikes, "threshold": machiavelli.InactivityThreshold}
		safeNotify(next.ID, NotifyInactivityWarning, func() {
			s.notifier.NotifyUser(w.UserID, NotifyInactivityWarning, data)
		})
	}
	if res.Finished() {
		s.broadcast(next.ID, NotifyGameEnded, map[string]any{
			"winners":     next.Winners,
			"victoryType": string(next.VictoryType),
		})
	} else {
		s.broadcast(next.ID, NotifyPhaseChanged, phaseData(next))
	}
	return nil
}

func (s *TurnService) setTimer(ctx context.Context, gameID string, deadline time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetTimer(ctx, gameID, deadline); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to set timer, poller will pick up the deadline")
	}
}

func (s *TurnService) clearTimer(ctx context.Context, gameID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ClearTimer(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to clear timer")
	}
}

func (s *TurnService) broadcast(gameID, eventType string, data any) {
	safeNotify(gameID, eventType, func() {
		s.notifier.BroadcastGameEvent(gameID, eventType, data)
	})
}

func phaseData(g *machiavelli.Game) map[string]any {
	return map[string]any{
		"turn":     g.TurnNumber,
		"season":   string(g.Season),
		"year":     g.Year,
		"phase":    string(g.Phase),
		"deadline": g.PhaseDeadline.Format(time.RFC3339),
	}
}
