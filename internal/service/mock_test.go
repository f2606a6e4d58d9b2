package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

type orderKey struct {
	gameID string
	turn   int
}

type mockStore struct {
	mu       sync.Mutex
	games    map[string]*machiavelli.Game
	players  map[string][]machiavelli.Player
	orders   map[orderKey][]machiavelli.Order
	expenses map[orderKey][]machiavelli.Expense
	votes    map[string][]machiavelli.Vote
	history  map[string][]machiavelli.HistoryEntry
	commits  int

	commitErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		games:    make(map[string]*machiavelli.Game),
		players:  make(map[string][]machiavelli.Player),
		orders:   make(map[orderKey][]machiavelli.Order),
		expenses: make(map[orderKey][]machiavelli.Expense),
		votes:    make(map[string][]machiavelli.Vote),
		history:  make(map[string][]machiavelli.HistoryEntry),
	}
}

func (m *mockStore) CreateGame(_ context.Context, g model.NewGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.Game.ID]; ok {
		return repository.ErrGameExists
	}
	m.games[g.Game.ID] = g.Game.Clone()
	m.players[g.Game.ID] = clonePlayers(g.Players)
	return nil
}

func (m *mockStore) GetGame(_ context.Context, id string) (*machiavelli.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

func (m *mockStore) ListPlayers(_ context.Context, gameID string) ([]machiavelli.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clonePlayers(m.players[gameID]), nil
}

func (m *mockStore) ListOrders(_ context.Context, gameID string, turn int) ([]machiavelli.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]machiavelli.Order(nil), m.orders[orderKey{gameID, turn}]...)
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func (m *mockStore) ListExpenses(_ context.Context, gameID string, turn int) ([]machiavelli.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]machiavelli.Expense(nil), m.expenses[orderKey{gameID, turn}]...), nil
}

func (m *mockStore) ListVotes(_ context.Context, gameID string) ([]machiavelli.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]machiavelli.Vote(nil), m.votes[gameID]...), nil
}

func (m *mockStore) SaveSubmission(_ context.Context, sub model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.games[sub.GameID]
	if g == nil || g.Version != sub.ExpectedVersion || g.Phase != machiavelli.PhaseOrders {
		return repository.ErrVersionConflict
	}
	g.Submissions++

	ps := m.players[sub.GameID]
	for i := range ps {
		if ps[i].ID == sub.Player.ID {
			ps[i] = sub.Player.Clone()
		}
	}

	key := orderKey{sub.GameID, sub.Turn}
	var orders []machiavelli.Order
	for _, o := range m.orders[key] {
		if o.Player != sub.Player.ID {
			orders = append(orders, o)
		}
	}
	m.orders[key] = append(orders, sub.Orders...)

	var expenses []machiavelli.Expense
	for _, e := range m.expenses[key] {
		if e.Player != sub.Player.ID {
			expenses = append(expenses, e)
		}
	}
	m.expenses[key] = append(expenses, sub.Expenses...)
	return nil
}

func (m *mockStore) UpsertVote(_ context.Context, gameID string, v machiavelli.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, old := range m.votes[gameID] {
		if old.Voter == v.Voter && old.Target == v.Target {
			m.votes[gameID][i].Choice = v.Choice
			return nil
		}
	}
	m.votes[gameID] = append(m.votes[gameID], v)
	return nil
}

func (m *mockStore) CommitTurn(_ context.Context, c model.TurnCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	g := m.games[c.Game.ID]
	if g == nil || g.Version != c.ExpectedVersion || g.Submissions != c.ExpectedSubmissions {
		return repository.ErrVersionConflict
	}
	next := c.Game.Clone()
	next.Version = c.ExpectedVersion + 1
	next.Submissions = c.ExpectedSubmissions
	m.games[next.ID] = next
	if c.Players != nil {
		m.players[next.ID] = clonePlayers(c.Players)
	}
	if c.History != nil {
		m.orders[orderKey{next.ID, c.ResolvedTurn}] = append([]machiavelli.Order(nil), c.Orders...)
		m.history[next.ID] = append(m.history[next.ID], *c.History)
	}
	drop := make(map[string]bool)
	for _, id := range c.DeleteVoteIDs {
		drop[id] = true
	}
	var kept []machiavelli.Vote
	for _, v := range m.votes[next.ID] {
		if !drop[v.ID] {
			kept = append(kept, v)
		}
	}
	m.votes[next.ID] = kept
	m.commits++
	return nil
}

func (m *mockStore) ListHistory(_ context.Context, gameID string) ([]machiavelli.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]machiavelli.HistoryEntry(nil), m.history[gameID]...), nil
}

func (m *mockStore) ListDueGames(_ context.Context, now time.Time) ([]model.DueGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []model.DueGame
	for _, g := range m.games {
		running := g.Phase == machiavelli.PhaseOrders || g.Phase == machiavelli.PhaseDiplomatic
		if running && !g.PhaseDeadline.After(now) {
			due = append(due, model.DueGame{ID: g.ID, Phase: g.Phase, Deadline: g.PhaseDeadline})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func clonePlayers(ps []machiavelli.Player) []machiavelli.Player {
	if ps == nil {
		return nil
	}
	out := make([]machiavelli.Player, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}

type mockCache struct {
	mu       sync.Mutex
	leases   map[string]string
	timers   map[string]time.Time
	released int
}

func newMockCache() *mockCache {
	return &mockCache{leases: make(map[string]string), timers: make(map[string]time.Time)}
}

func (m *mockCache) AcquireLease(_ context.Context, gameID string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.leases[gameID]; held {
		return "", repository.ErrLeaseHeld
	}
	token := "lease-" + gameID
	m.leases[gameID] = token
	return token, nil
}

func (m *mockCache) ReleaseLease(_ context.Context, gameID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases[gameID] == token {
		delete(m.leases, gameID)
		m.released++
	}
	return nil
}

func (m *mockCache) SetTimer(_ context.Context, gameID string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[gameID] = deadline
	return nil
}

func (m *mockCache) ClearTimer(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, gameID)
	return nil
}

type sentEvent struct {
	target string
	typ    string
	data   any
}

type recordingNotifier struct {
	mu     sync.Mutex
	game   []sentEvent
	user   []sentEvent
	panics bool
}

func (n *recordingNotifier) BroadcastGameEvent(gameID, eventType string, data any) {
	if n.panics {
		panic("socket closed")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.game = append(n.game, sentEvent{gameID, eventType, data})
}

func (n *recordingNotifier) NotifyUser(userID, eventType string, data any) {
	if n.panics {
		panic("socket closed")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.user = append(n.user, sentEvent{userID, eventType, data})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.game {
		out = append(out, e.typ)
	}
	return out
}

type fixedDice struct{}

func (fixedDice) D6() int        { return 1 }
func (fixedDice) Intn(n int) int { return 0 }
