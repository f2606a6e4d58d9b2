package machiavelli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoGame       = errors.New("no game to resolve")
	ErrGameFinished = errors.New("game is finished")
)

// TurnInput is everything loaded for one resolution run.
type TurnInput struct {
	Game     *Game
	Players  []Player
	Orders   []Order
	Expenses []Expense
	Votes    []Vote
}

// TurnResult is the post-resolution state, ready to commit.
type TurnResult struct {
	Game           *Game
	Players        []Player
	Orders         []Order
	Events         []TurnEvent
	History        HistoryEntry
	ProcessedVotes []string
	Warnings       []InactivityWarning
}

// Finished reports whether the turn ended the game.
func (r *TurnResult) Finished() bool {
	return r.Game.Phase == PhaseFinished
}

// Resolver runs the turn pipeline. It holds no per-game state and may be
// shared across goroutines only if Dice and NewID are safe for concurrent use.
type Resolver struct {
	Map    *Map
	Dice   Roller
	NewID  func() string
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewResolver returns a resolver over m. A nil roller is clock-seeded and a
// nil id source generates UUIDs.
func NewResolver(m *Map, dice Roller, newID func() string) *Resolver {
	if dice == nil {
		dice = NewRoller(0)
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Resolver{
		Map:    m,
		Dice:   dice,
		NewID:  newID,
		Now:    time.Now,
		Logger: zerolog.Nop(),
	}
}

type stage struct {
	name string
	run  func(*TurnState) error
}

func pure(f func(*TurnState)) func(*TurnState) error {
	return func(s *TurnState) error {
		f(s)
		return nil
	}
}

// ResolveTurn adjudicates one turn. The stages run strictly in order:
// inactivity, special events, validation, economy, movement, retreats,
// sieges, conversions, votes and elimination, then the season advances and
// victory is checked. The input is never mutated.
func (r *Resolver) ResolveTurn(in TurnInput) (*TurnResult, error) {
	if in.Game == nil {
		return nil, ErrNoGame
	}
	if in.Game.Phase == PhaseFinished {
		return nil, ErrGameFinished
	}

	s := NewTurnState(r.Map, in.Game, in.Players, in.Orders)
	s.Expenses = append([]Expense(nil), in.Expenses...)
	s.Votes = append([]Vote(nil), in.Votes...)
	s.dice = r.Dice
	if s.dice == nil {
		s.dice = NewRoller(0)
	}
	s.newID = r.NewID
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.log = r.Logger.With().
		Str("gameId", in.Game.ID).
		Int("turn", in.Game.TurnNumber).
		Str("season", string(in.Game.Season)).
		Int("year", in.Game.Year).
		Logger()

	resolvedTurn, resolvedSeason, resolvedYear := s.Game.TurnNumber, s.Game.Season, s.Game.Year
	s.log.Debug().Int("units", len(s.Units)).Int("orders", len(s.Orders)).Msg("resolving turn")

	stages := []stage{
		{"inactivity", pure(applyInactivity)},
		{"special events", pure(applySpecialEvents)},
		{"validation", pure(validateOrders)},
		{"income", pure(applyIncomeAndMaintenance)},
		{"snapshot", pure(takeSnapshot)},
		{"expenses", pure(processExpenses)},
		{"movement", resolveMovement},
		{"retreat", pure(applyRetreats)},
		{"siege", pure(applySieges)},
		{"conversion", pure(applyConversions)},
		{"votes", pure(tallyVotes)},
		{"elimination", pure(eliminateConquered)},
	}
	for _, st := range stages {
		before := len(s.Events)
		if err := st.run(s); err != nil {
			s.log.Error().Err(err).Str("stage", st.name).Msg("stage failed")
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
		s.log.Debug().Str("stage", st.name).Int("events", len(s.Events)-before).Msg("stage done")
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	refreshCities(s)
	AdvanceTurn(s.Game, s.Players, now)
	evaluateVictory(s, resolvedSeason, resolvedTurn)

	res := &TurnResult{
		Game:           s.Game,
		Events:         s.Events,
		ProcessedVotes: s.ProcessedVotes,
		Warnings:       s.Warnings,
	}
	res.Game.Units = s.unitSlice()
	for _, pid := range s.PlayerIDs() {
		res.Players = append(res.Players, *s.Players[pid])
	}
	orderIDs := make([]UnitID, 0, len(s.Orders))
	for id := range s.Orders {
		orderIDs = append(orderIDs, id)
	}
	sortUnitIDs(orderIDs)
	for _, id := range orderIDs {
		res.Orders = append(res.Orders, *s.Orders[id])
	}
	res.History = BuildHistory(s.Game.ID, resolvedTurn, resolvedSeason, resolvedYear, now, s.Events)

	s.log.Info().
		Int("events", len(s.Events)).
		Int("units", len(res.Game.Units)).
		Bool("finished", res.Finished()).
		Msg("turn resolved")
	return res, nil
}
