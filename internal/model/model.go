package model

import (
	"time"

	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

// Submission is one player's orders and expenses for the current turn.
// Saving it replaces anything the player submitted earlier in the same turn.
// It is accepted while the game is still at ExpectedVersion and bumps the
// game's submission count, never its version.
type Submission struct {
	GameID          string
	Turn            int
	ExpectedVersion int64
	Player          machiavelli.Player
	Orders          []machiavelli.Order
	Expenses        []machiavelli.Expense
}

// TurnCommit is the complete post-resolution state written in one transaction.
// A nil History means the game only changed phase (diplomatic to orders).
type TurnCommit struct {
	Game            *machiavelli.Game
	ExpectedVersion int64
	// ExpectedSubmissions is the submission count read with the game. A
	// submission saved after that read fails the commit.
	ExpectedSubmissions int64
	Players         []machiavelli.Player
	ResolvedTurn    int
	Orders          []machiavelli.Order
	History         *machiavelli.HistoryEntry
	DeleteVoteIDs   []string
}

// NewGame seeds a game with its seated players. Seat order is the players'
// slice order and is preserved on load.
type NewGame struct {
	Game    *machiavelli.Game
	Players []machiavelli.Player
}

// DueGame is a game whose phase deadline has passed.
type DueGame struct {
	ID       string            `json:"id"`
	Phase    machiavelli.Phase `json:"phase"`
	Deadline time.Time         `json:"deadline"`
}

// OrderSubmission is the request payload for submitting orders.
type OrderSubmission struct {
	Orders   []machiavelli.Order   `json:"orders"`
	Expenses []machiavelli.Expense `json:"expenses,omitempty"`
}

// VoteRequest is the request payload for a vote on an inactive player.
type VoteRequest struct {
	Target string `json:"target_player_id"`
	Choice string `json:"choice"`
}
