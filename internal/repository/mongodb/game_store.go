package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

const (
	gamesCollection    = "games"
	playersCollection  = "players"
	ordersCollection   = "orders"
	expensesCollection = "expenses"
	votesCollection    = "votes"
	historyCollection  = "history"
)

type gameRecord struct {
	ID            string     `bson:"_id"`
	Version       int64      `bson:"version"`
	Submissions   int64      `bson:"submissions"`
	Phase         string     `bson:"phase"`
	PhaseDeadline *time.Time `bson:"phaseDeadline,omitempty"`
	Doc           bson.D     `bson:"doc"`
}

type playerRecord struct {
	GameID   string `bson:"gameId"`
	PlayerID string `bson:"playerId"`
	Seat     int    `bson:"seat"`
	UserID   string `bson:"userId,omitempty"`
	Doc      bson.D `bson:"doc"`
}

type orderRecord struct {
	GameID   string `bson:"gameId"`
	Turn     int    `bson:"turn"`
	UnitID   string `bson:"unitId"`
	PlayerID string `bson:"playerId"`
	Doc      bson.D `bson:"doc"`
}

type expenseRecord struct {
	GameID    string `bson:"gameId"`
	Turn      int    `bson:"turn"`
	ExpenseID string `bson:"expenseId"`
	PlayerID  string `bson:"playerId"`
	Seq       int64  `bson:"seq"`
	Doc       bson.D `bson:"doc"`
}

type voteRecord struct {
	ID        string    `bson:"_id"`
	GameID    string    `bson:"gameId"`
	Voter     string    `bson:"voter"`
	Target    string    `bson:"target"`
	Choice    string    `bson:"choice"`
	CreatedAt time.Time `bson:"createdAt"`
}

type historyRecord struct {
	GameID    string    `bson:"gameId"`
	Turn      int       `bson:"turn"`
	CreatedAt time.Time `bson:"createdAt"`
	Doc       bson.D    `bson:"doc"`
}

// GameStore keeps games and their per-turn records in MongoDB collections.
// CommitTurn and SaveSubmission need a replica set for transactions.
type GameStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewGameStore creates a GameStore over db.
func NewGameStore(db *mongo.Database) *GameStore {
	return &GameStore{client: db.Client(), db: db}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *GameStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		playersCollection: {
			{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "playerId", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "seat", Value: 1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "turn", Value: 1}, {Key: "unitId", Value: 1}}, Options: unique},
		},
		expensesCollection: {
			{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "turn", Value: 1}, {Key: "seq", Value: 1}}},
		},
		votesCollection: {
			{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "voter", Value: 1}, {Key: "target", Value: 1}}, Options: unique},
		},
		historyCollection: {
			{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "turn", Value: 1}}, Options: unique},
		},
		gamesCollection: {
			{Keys: bson.D{{Key: "phase", Value: 1}, {Key: "phaseDeadline", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// CreateGame inserts a game and its seated players.
func (s *GameStore) CreateGame(ctx context.Context, g model.NewGame) error {
	rec, err := newGameRecord(g.Game, g.Game.Version)
	if err != nil {
		return err
	}
	return s.inTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.db.Collection(gamesCollection).InsertOne(ctx, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return repository.ErrGameExists
			}
			return fmt.Errorf("insert game: %w", err)
		}
		docs := make([]any, 0, len(g.Players))
		for seat, p := range g.Players {
			doc, err := toDoc(p)
			if err != nil {
				return fmt.Errorf("encode player %s: %w", p.ID, err)
			}
			docs = append(docs, playerRecord{
				GameID:   g.Game.ID,
				PlayerID: string(p.ID),
				Seat:     seat,
				UserID:   p.UserID,
				Doc:      doc,
			})
		}
		if len(docs) == 0 {
			return nil
		}
		if _, err := s.db.Collection(playersCollection).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert players: %w", err)
		}
		return nil
	})
}

// GetGame loads a game document. The version field is authoritative.
func (s *GameStore) GetGame(ctx context.Context, id string) (*machiavelli.Game, error) {
	var rec gameRecord
	err := s.db.Collection(gamesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	var g machiavelli.Game
	if err := fromDoc(rec.Doc, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	g.Version = rec.Version
	g.Submissions = rec.Submissions
	return &g, nil
}

// ListPlayers returns a game's players in seat order.
func (s *GameStore) ListPlayers(ctx context.Context, gameID string) ([]machiavelli.Player, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seat", Value: 1}})
	cur, err := s.db.Collection(playersCollection).Find(ctx, bson.M{"gameId": gameID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	var recs []playerRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	out := make([]machiavelli.Player, 0, len(recs))
	for _, r := range recs {
		var p machiavelli.Player
		if err := fromDoc(r.Doc, &p); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", r.PlayerID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ListOrders returns the orders stored for a turn, sorted by unit.
func (s *GameStore) ListOrders(ctx context.Context, gameID string, turn int) ([]machiavelli.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "unitId", Value: 1}})
	cur, err := s.db.Collection(ordersCollection).Find(ctx, bson.M{"gameId": gameID, "turn": turn}, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var recs []orderRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]machiavelli.Order, 0, len(recs))
	for _, r := range recs {
		var o machiavelli.Order
		if err := fromDoc(r.Doc, &o); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", r.UnitID, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// ListExpenses returns a turn's expenses in submission order.
func (s *GameStore) ListExpenses(ctx context.Context, gameID string, turn int) ([]machiavelli.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cur, err := s.db.Collection(expensesCollection).Find(ctx, bson.M{"gameId": gameID, "turn": turn}, opts)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	var recs []expenseRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	out := make([]machiavelli.Expense, 0, len(recs))
	for _, r := range recs {
		var e machiavelli.Expense
		if err := fromDoc(r.Doc, &e); err != nil {
			return nil, fmt.Errorf("decode expense %s: %w", r.ExpenseID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ListVotes returns the pending votes of a game, oldest first.
func (s *GameStore) ListVotes(ctx context.Context, gameID string) ([]machiavelli.Vote, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(votesCollection).Find(ctx, bson.M{"gameId": gameID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	var recs []voteRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode votes: %w", err)
	}
	out := make([]machiavelli.Vote, 0, len(recs))
	for _, r := range recs {
		out = append(out, machiavelli.Vote{
			ID:     r.ID,
			Voter:  machiavelli.PlayerID(r.Voter),
			Target: machiavelli.PlayerID(r.Target),
			Choice: machiavelli.VoteChoice(r.Choice),
		})
	}
	return out, nil
}

// SaveSubmission replaces a player's orders and expenses for the turn and
// stores the updated player, guarded by the game version.
func (s *GameStore) SaveSubmission(ctx context.Context, sub model.Submission) error {
	pdoc, err := toDoc(sub.Player)
	if err != nil {
		return fmt.Errorf("encode player: %w", err)
	}
	return s.inTransaction(ctx, func(ctx context.Context) error {
		res, err := s.db.Collection(gamesCollection).UpdateOne(ctx,
			bson.M{"_id": sub.GameID, "version": sub.ExpectedVersion, "phase": string(machiavelli.PhaseOrders)},
			bson.M{"$inc": bson.M{"submissions": 1}},
		)
		if err != nil {
			return fmt.Errorf("count submission: %w", err)
		}
		if res.MatchedCount == 0 {
			return repository.ErrVersionConflict
		}

		if _, err := s.db.Collection(playersCollection).UpdateOne(ctx,
			bson.M{"gameId": sub.GameID, "playerId": string(sub.Player.ID)},
			bson.M{"$set": bson.M{"doc": pdoc}},
		); err != nil {
			return fmt.Errorf("update player: %w", err)
		}

		owner := bson.M{"gameId": sub.GameID, "turn": sub.Turn, "playerId": string(sub.Player.ID)}
		if _, err := s.db.Collection(ordersCollection).DeleteMany(ctx, owner); err != nil {
			return fmt.Errorf("clear orders: %w", err)
		}
		if err := s.insertOrders(ctx, sub.GameID, sub.Turn, sub.Orders); err != nil {
			return err
		}
		if _, err := s.db.Collection(expensesCollection).DeleteMany(ctx, owner); err != nil {
			return fmt.Errorf("clear expenses: %w", err)
		}
		base := time.Now().UnixNano()
		for i, e := range sub.Expenses {
			doc, err := toDoc(e)
			if err != nil {
				return fmt.Errorf("encode expense: %w", err)
			}
			rec := expenseRecord{
				GameID:    sub.GameID,
				Turn:      sub.Turn,
				ExpenseID: e.ID,
				PlayerID:  string(e.Player),
				Seq:       base + int64(i),
				Doc:       doc,
			}
			if _, err := s.db.Collection(expensesCollection).InsertOne(ctx, rec); err != nil {
				return fmt.Errorf("insert expense: %w", err)
			}
		}
		return nil
	})
}

// UpsertVote records a ballot, replacing the voter's earlier ballot on the
// same target.
func (s *GameStore) UpsertVote(ctx context.Context, gameID string, v machiavelli.Vote) error {
	_, err := s.db.Collection(votesCollection).UpdateOne(ctx,
		bson.M{"gameId": gameID, "voter": string(v.Voter), "target": string(v.Target)},
		bson.M{
			"$set":         bson.M{"choice": string(v.Choice), "createdAt": time.Now().UTC()},
			"$setOnInsert": bson.M{"_id": v.ID},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// CommitTurn writes the post-resolution state in one transaction. It fails
// with repository.ErrVersionConflict if the game changed since it was loaded.
func (s *GameStore) CommitTurn(ctx context.Context, c model.TurnCommit) error {
	rec, err := newGameRecord(c.Game, c.ExpectedVersion+1)
	if err != nil {
		return err
	}
	rec.Submissions = c.ExpectedSubmissions
	return s.inTransaction(ctx, func(ctx context.Context) error {
		res, err := s.db.Collection(gamesCollection).ReplaceOne(ctx,
			bson.M{"_id": rec.ID, "version": c.ExpectedVersion, "submissions": c.ExpectedSubmissions}, rec)
		if err != nil {
			return fmt.Errorf("replace game: %w", err)
		}
		if res.MatchedCount == 0 {
			return repository.ErrVersionConflict
		}

		for _, p := range c.Players {
			doc, err := toDoc(p)
			if err != nil {
				return fmt.Errorf("encode player %s: %w", p.ID, err)
			}
			if _, err := s.db.Collection(playersCollection).UpdateOne(ctx,
				bson.M{"gameId": rec.ID, "playerId": string(p.ID)},
				bson.M{"$set": bson.M{"doc": doc}},
			); err != nil {
				return fmt.Errorf("update player %s: %w", p.ID, err)
			}
		}

		if c.History != nil {
			if _, err := s.db.Collection(ordersCollection).DeleteMany(ctx,
				bson.M{"gameId": rec.ID, "turn": c.ResolvedTurn}); err != nil {
				return fmt.Errorf("clear resolved orders: %w", err)
			}
			if err := s.insertOrders(ctx, rec.ID, c.ResolvedTurn, c.Orders); err != nil {
				return err
			}
			hdoc, err := toDoc(c.History)
			if err != nil {
				return fmt.Errorf("encode history: %w", err)
			}
			if _, err := s.db.Collection(historyCollection).InsertOne(ctx, historyRecord{
				GameID:    rec.ID,
				Turn:      c.History.TurnNumber,
				CreatedAt: c.History.Timestamp,
				Doc:       hdoc,
			}); err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
		}

		if len(c.DeleteVoteIDs) > 0 {
			if _, err := s.db.Collection(votesCollection).DeleteMany(ctx,
				bson.M{"gameId": rec.ID, "_id": bson.M{"$in": c.DeleteVoteIDs}}); err != nil {
				return fmt.Errorf("delete votes: %w", err)
			}
		}
		return nil
	})
}

// ListHistory returns a game's turn history, oldest first.
func (s *GameStore) ListHistory(ctx context.Context, gameID string) ([]machiavelli.HistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "turn", Value: 1}})
	cur, err := s.db.Collection(historyCollection).Find(ctx, bson.M{"gameId": gameID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	var recs []historyRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	out := make([]machiavelli.HistoryEntry, 0, len(recs))
	for _, r := range recs {
		var h machiavelli.HistoryEntry
		if err := fromDoc(r.Doc, &h); err != nil {
			return nil, fmt.Errorf("decode history turn %d: %w", r.Turn, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// ListDueGames returns running games whose phase deadline is at or before now.
func (s *GameStore) ListDueGames(ctx context.Context, now time.Time) ([]model.DueGame, error) {
	filter := bson.M{
		"phase":         bson.M{"$in": bson.A{string(machiavelli.PhaseDiplomatic), string(machiavelli.PhaseOrders)}},
		"phaseDeadline": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "phaseDeadline", Value: 1}}).
		SetProjection(bson.M{"doc": 0})
	cur, err := s.db.Collection(gamesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list due games: %w", err)
	}
	var recs []gameRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode due games: %w", err)
	}
	out := make([]model.DueGame, 0, len(recs))
	for _, r := range recs {
		d := model.DueGame{ID: r.ID, Phase: machiavelli.Phase(r.Phase)}
		if r.PhaseDeadline != nil {
			d.Deadline = *r.PhaseDeadline
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *GameStore) insertOrders(ctx context.Context, gameID string, turn int, orders []machiavelli.Order) error {
	for _, o := range orders {
		doc, err := toDoc(o)
		if err != nil {
			return fmt.Errorf("encode order: %w", err)
		}
		rec := orderRecord{
			GameID:   gameID,
			Turn:     turn,
			UnitID:   string(o.UnitID),
			PlayerID: string(o.Player),
			Doc:      doc,
		}
		if _, err := s.db.Collection(ordersCollection).ReplaceOne(ctx,
			bson.M{"gameId": gameID, "turn": turn, "unitId": rec.UnitID},
			rec,
			options.Replace().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return nil
}

func (s *GameStore) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func newGameRecord(g *machiavelli.Game, version int64) (gameRecord, error) {
	c := g.Clone()
	c.Version = version
	doc, err := toDoc(c)
	if err != nil {
		return gameRecord{}, fmt.Errorf("encode game: %w", err)
	}
	rec := gameRecord{ID: c.ID, Version: version, Phase: string(c.Phase), Doc: doc}
	if !c.PhaseDeadline.IsZero() {
		d := c.PhaseDeadline.UTC()
		rec.PhaseDeadline = &d
	}
	return rec, nil
}
