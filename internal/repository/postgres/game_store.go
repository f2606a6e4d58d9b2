package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

// GameStore keeps games, players, orders, expenses, votes and history as
// JSONB documents.
type GameStore struct {
	db *sql.DB
}

// NewGameStore creates a GameStore.
func NewGameStore(db *sql.DB) *GameStore {
	return &GameStore{db: db}
}

// CreateGame inserts a game and its seated players.
func (s *GameStore) CreateGame(ctx context.Context, g model.NewGame) error {
	doc, err := json.Marshal(g.Game)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO games (id, version, phase, phase_deadline, doc) VALUES ($1, $2, $3, $4, $5)`,
			g.Game.ID, g.Game.Version, string(g.Game.Phase), nullTime(g.Game.PhaseDeadline), doc,
		)
		if isUniqueViolation(err) {
			return repository.ErrGameExists
		}
		if err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		for seat, p := range g.Players {
			pdoc, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal player %s: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO players (game_id, id, seat, user_id, doc) VALUES ($1, $2, $3, $4, $5)`,
				g.Game.ID, string(p.ID), seat, nullStr(p.UserID), pdoc,
			); err != nil {
				return fmt.Errorf("insert player %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// GetGame loads a game document. The version column is authoritative.
func (s *GameStore) GetGame(ctx context.Context, id string) (*machiavelli.Game, error) {
	var doc []byte
	var version, submissions int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version, submissions FROM games WHERE id = $1`, id).Scan(&doc, &version, &submissions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	var g machiavelli.Game
	if err := json.Unmarshal(doc, &g); err != nil {
		return nil, fmt.Errorf("unmarshal game: %w", err)
	}
	g.Version = version
	g.Submissions = submissions
	return &g, nil
}

// ListPlayers returns a game's players in seat order.
func (s *GameStore) ListPlayers(ctx context.Context, gameID string) ([]machiavelli.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM players WHERE game_id = $1 ORDER BY seat`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return scanDocs[machiavelli.Player](rows)
}

// ListOrders returns the orders stored for a turn, sorted by unit.
func (s *GameStore) ListOrders(ctx context.Context, gameID string, turn int) ([]machiavelli.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM orders WHERE game_id = $1 AND turn = $2 ORDER BY unit_id`, gameID, turn)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return scanDocs[machiavelli.Order](rows)
}

// ListExpenses returns a turn's expenses in submission order.
func (s *GameStore) ListExpenses(ctx context.Context, gameID string, turn int) ([]machiavelli.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM expenses WHERE game_id = $1 AND turn = $2 ORDER BY seq`, gameID, turn)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return scanDocs[machiavelli.Expense](rows)
}

// ListVotes returns the pending votes of a game, oldest first.
func (s *GameStore) ListVotes(ctx context.Context, gameID string) ([]machiavelli.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, voter_id, target_id, choice FROM votes WHERE game_id = $1 ORDER BY created_at, id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []machiavelli.Vote
	for rows.Next() {
		var v machiavelli.Vote
		var voter, target, choice string
		if err := rows.Scan(&v.ID, &voter, &target, &choice); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Voter = machiavelli.PlayerID(voter)
		v.Target = machiavelli.PlayerID(target)
		v.Choice = machiavelli.VoteChoice(choice)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// SaveSubmission replaces a player's orders and expenses for the turn and
// stores the updated player. It is guarded by the game version but only bumps
// the submission count, so players submitting at once do not conflict.
func (s *GameStore) SaveSubmission(ctx context.Context, sub model.Submission) error {
	pdoc, err := json.Marshal(sub.Player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := countSubmission(ctx, tx, sub.GameID, sub.ExpectedVersion); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE players SET doc = $3 WHERE game_id = $1 AND id = $2`,
			sub.GameID, string(sub.Player.ID), pdoc,
		); err != nil {
			return fmt.Errorf("update player: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM orders WHERE game_id = $1 AND turn = $2 AND player_id = $3`,
			sub.GameID, sub.Turn, string(sub.Player.ID),
		); err != nil {
			return fmt.Errorf("clear orders: %w", err)
		}
		if err := insertOrders(ctx, tx, sub.GameID, sub.Turn, sub.Orders); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM expenses WHERE game_id = $1 AND turn = $2 AND player_id = $3`,
			sub.GameID, sub.Turn, string(sub.Player.ID),
		); err != nil {
			return fmt.Errorf("clear expenses: %w", err)
		}
		for _, e := range sub.Expenses {
			edoc, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal expense: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO expenses (game_id, turn, id, player_id, doc) VALUES ($1, $2, $3, $4, $5)`,
				sub.GameID, sub.Turn, e.ID, string(e.Player), edoc,
			); err != nil {
				return fmt.Errorf("insert expense: %w", err)
			}
		}
		return nil
	})
}

// UpsertVote records a ballot, replacing the voter's earlier ballot on the
// same target.
func (s *GameStore) UpsertVote(ctx context.Context, gameID string, v machiavelli.Vote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO votes (id, game_id, voter_id, target_id, choice) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (game_id, voter_id, target_id)
		 DO UPDATE SET choice = EXCLUDED.choice, created_at = now()`,
		v.ID, gameID, string(v.Voter), string(v.Target), string(v.Choice),
	)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// CommitTurn writes the post-resolution state in one transaction. It fails
// with repository.ErrVersionConflict if the game changed since it was loaded.
func (s *GameStore) CommitTurn(ctx context.Context, c model.TurnCommit) error {
	g := c.Game.Clone()
	g.Version = c.ExpectedVersion + 1
	g.Submissions = c.ExpectedSubmissions
	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE games SET version = version + 1, phase = $3, phase_deadline = $4, doc = $5, updated_at = now()
			 WHERE id = $1 AND version = $2 AND submissions = $6`,
			g.ID, c.ExpectedVersion, string(g.Phase), nullTime(g.PhaseDeadline), doc, c.ExpectedSubmissions,
		)
		if err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		for _, p := range c.Players {
			pdoc, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal player %s: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE players SET doc = $3 WHERE game_id = $1 AND id = $2`,
				g.ID, string(p.ID), pdoc,
			); err != nil {
				return fmt.Errorf("update player %s: %w", p.ID, err)
			}
		}

		if c.History != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM orders WHERE game_id = $1 AND turn = $2`, g.ID, c.ResolvedTurn,
			); err != nil {
				return fmt.Errorf("clear resolved orders: %w", err)
			}
			if err := insertOrders(ctx, tx, g.ID, c.ResolvedTurn, c.Orders); err != nil {
				return err
			}
			hdoc, err := json.Marshal(c.History)
			if err != nil {
				return fmt.Errorf("marshal history: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO history (game_id, turn, doc, created_at) VALUES ($1, $2, $3, $4)`,
				g.ID, c.History.TurnNumber, hdoc, c.History.Timestamp,
			); err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
		}

		if len(c.DeleteVoteIDs) > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM votes WHERE game_id = $1 AND id = ANY($2)`, g.ID, pq.Array(c.DeleteVoteIDs),
			); err != nil {
				return fmt.Errorf("delete votes: %w", err)
			}
		}
		return nil
	})
}

// ListHistory returns a game's turn history, oldest first.
func (s *GameStore) ListHistory(ctx context.Context, gameID string) ([]machiavelli.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM history WHERE game_id = $1 ORDER BY turn`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return scanDocs[machiavelli.HistoryEntry](rows)
}

// ListDueGames returns running games whose phase deadline is at or before now.
func (s *GameStore) ListDueGames(ctx context.Context, now time.Time) ([]model.DueGame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phase, phase_deadline FROM games
		 WHERE phase IN ('diplomatic', 'orders') AND phase_deadline <= $1
		 ORDER BY phase_deadline`, now)
	if err != nil {
		return nil, fmt.Errorf("list due games: %w", err)
	}
	defer rows.Close()

	var due []model.DueGame
	for rows.Next() {
		var d model.DueGame
		var phase string
		if err := rows.Scan(&d.ID, &phase, &d.Deadline); err != nil {
			return nil, fmt.Errorf("scan due game: %w", err)
		}
		d.Phase = machiavelli.Phase(phase)
		due = append(due, d)
	}
	return due, rows.Err()
}

func countSubmission(ctx context.Context, tx *sql.Tx, gameID string, expected int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE games SET submissions = submissions + 1, updated_at = now()
		 WHERE id = $1 AND version = $2 AND phase = 'orders'`,
		gameID, expected,
	)
	if err != nil {
		return fmt.Errorf("count submission: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

func insertOrders(ctx context.Context, tx *sql.Tx, gameID string, turn int, orders []machiavelli.Order) error {
	if len(orders) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO orders (game_id, turn, unit_id, player_id, doc) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (game_id, turn, unit_id) DO UPDATE SET player_id = EXCLUDED.player_id, doc = EXCLUDED.doc`)
	if err != nil {
		return fmt.Errorf("prepare insert order: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		doc, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, gameID, turn, string(o.UnitID), string(o.Player), doc); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return nil
}

func scanDocs[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("unmarshal doc: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
