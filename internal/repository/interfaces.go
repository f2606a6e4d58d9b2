package repository

import (
	"context"
	"errors"
	"time"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

var (
	// ErrVersionConflict is returned when a write expected a game version
	// that has since changed.
	ErrVersionConflict = errors.New("game version conflict")

	// ErrLeaseHeld is returned when another worker owns a game's resolution lease.
	ErrLeaseHeld = errors.New("resolution lease held by another worker")

	ErrGameExists = errors.New("game already exists")
)

// GameStore persists game documents, players, submissions, votes and history.
// Lookups of a missing game return nil without an error.
type GameStore interface {
	CreateGame(ctx context.Context, g model.NewGame) error
	GetGame(ctx context.Context, id string) (*machiavelli.Game, error)
	ListPlayers(ctx context.Context, gameID string) ([]machiavelli.Player, error)
	ListOrders(ctx context.Context, gameID string, turn int) ([]machiavelli.Order, error)
	ListExpenses(ctx context.Context, gameID string, turn int) ([]machiavelli.Expense, error)
	ListVotes(ctx context.Context, gameID string) ([]machiavelli.Vote, error)
	SaveSubmission(ctx context.Context, sub model.Submission) error
	UpsertVote(ctx context.Context, gameID string, v machiavelli.Vote) error
	CommitTurn(ctx context.Context, c model.TurnCommit) error
	ListHistory(ctx context.Context, gameID string) ([]machiavelli.HistoryEntry, error)
	ListDueGames(ctx context.Context, now time.Time) ([]model.DueGame, error)
}

// TurnCache holds short-lived coordination state (Redis).
type TurnCache interface {
	AcquireLease(ctx context.Context, gameID string, ttl time.Duration) (string, error)
	ReleaseLease(ctx context.Context, gameID, token string) error
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
}
