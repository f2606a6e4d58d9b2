package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// seedGame stores a two-player Spring game. p1 (user-1) created it.
func seedGame(t *testing.T, store *mockStore, phase machiavelli.Phase, deadline time.Time) {
	t.Helper()
	g := &machiavelli.Game{
		ID:             "g1",
		Name:           "Test Game",
		CreatorID:      "user-1",
		TurnNumber:     1,
		Season:         machiavelli.Spring,
		Year:           1454,
		Phase:          phase,
		PhaseDeadline:  deadline,
		OrdersDuration: time.Hour,
		Units: []machiavelli.Unit{
			{ID: "a-mil", Owner: "p1", Type: machiavelli.Army, Province: "mil"},
			{ID: "g-tur", Owner: "p1", Type: machiavelli.Garrison, Province: "tur"},
			{ID: "g-ven", Owner: "p2", Type: machiavelli.Garrison, Province: "ven"},
			{ID: "a-pad", Owner: "p2", Type: machiavelli.Army, Province: "pad"},
		},
	}
	players := []machiavelli.Player{
		{ID: "p1", UserID: "user-1", Faction: "Milan", Treasury: 10, IsAlive: true, Status: machiavelli.StatusActive,
			HasSubmittedOrders: true, AssassinTokens: map[machiavelli.PlayerID]bool{}},
		{ID: "p2", UserID: "user-2", Faction: "Venice", Treasury: 10, IsAlive: true, Status: machiavelli.StatusActive,
			AssassinTokens: map[machiavelli.PlayerID]bool{}},
	}
	if err := store.CreateGame(context.Background(), model.NewGame{Game: g, Players: players}); err != nil {
		t.Fatalf("seed game: %v", err)
	}
}

func newTestTurnService(store *mockStore, cache *mockCache, n Notifier) *TurnService {
	svc := NewTurnService(store, cache, n)
	svc.SetDice(func() machiavelli.Roller { return fixedDice{} })
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestResolveTurnSkipsBeforeDeadline(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(time.Hour))
	svc := newTestTurnService(store, cache, nil)

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	if store.commits != 0 {
		t.Errorf("expected no commit before the deadline, got %d", store.commits)
	}
	if cache.released != 1 {
		t.Error("lease should be released even when skipping")
	}
}

func TestResolveTurnAfterDeadline(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	store.orders[orderKey{"g1", 1}] = []machiavelli.Order{
		{UnitID: "a-mil", Player: "p1", Command: machiavelli.Move{Dest: "ver"}},
	}
	n := &recordingNotifier{}
	svc := newTestTurnService(store, cache, n)

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}

	g := store.games["g1"]
	if g.TurnNumber != 2 || g.Season != machiavelli.Summer || g.Version != 1 {
		t.Fatalf("expected turn 2 summer v1, got %d %s v%d", g.TurnNumber, g.Season, g.Version)
	}
	if g.Unit("a-mil").Province != "ver" {
		t.Error("army should have moved to verona")
	}
	if !cache.timers["g1"].Equal(testNow.Add(time.Hour)) {
		t.Errorf("expected timer at the next deadline, got %v", cache.timers["g1"])
	}
	if len(store.history["g1"]) != 1 || store.history["g1"][0].TurnNumber != 1 {
		t.Fatalf("expected history for turn 1, got %+v", store.history["g1"])
	}
	resolved := store.orders[orderKey{"g1", 1}]
	// The move, the idle player's two holds and the default hold for g-tur.
	if len(resolved) != 4 {
		t.Errorf("expected an order for every unit, got %d", len(resolved))
	}

	types := n.types()
	if !slices.Contains(types, NotifyTurnResolved) || !slices.Contains(types, NotifyPhaseChanged) {
		t.Errorf("expected turn_resolved and phase_changed, got %v", types)
	}
	var phases []string
	for _, e := range n.game {
		if e.typ == NotifyPhaseChanged {
			phases = append(phases, e.data.(map[string]any)["phase"].(string))
		}
	}
	if !slices.Equal(phases, []string{"resolution", "orders"}) {
		t.Errorf("expected resolution then orders phase changes, got %v", phases)
	}
	if len(n.user) != 1 || n.user[0].target != "user-2" || n.user[0].typ != NotifyInactivityWarning {
		t.Errorf("expected an inactivity warning for user-2, got %+v", n.user)
	}
	if p2 := store.players["g1"][1]; p2.InactivityCounter != 1 || p2.HasSubmittedOrders {
		t.Errorf("expected p2 with one strike and a reset flag, got %+v", p2)
	}
}

func TestResolveTurnRetriesAfterLateSubmission(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	svc := newTestTurnService(store, cache, nil)
	late := &lateSubmitStore{mockStore: store}
	svc.store = late

	err := svc.ResolveTurn(context.Background(), "g1")
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected the commit to conflict with the late submission, got %v", err)
	}
	if g := store.games["g1"]; g.TurnNumber != 1 || g.Submissions != 1 {
		t.Fatalf("expected turn 1 with one submission, got turn %d with %d", g.TurnNumber, g.Submissions)
	}

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	g := store.games["g1"]
	if g.TurnNumber != 2 {
		t.Fatalf("expected turn 2 after the retry, got %d", g.TurnNumber)
	}
	if g.Unit("a-pad").Province != "fer" {
		t.Error("the late order should be part of the resolved turn")
	}
}

// lateSubmitStore saves one submission for p2 after resolution has read the
// turn's orders.
type lateSubmitStore struct {
	*mockStore
	done bool
}

func (s *lateSubmitStore) ListExpenses(ctx context.Context, gameID string, turn int) ([]machiavelli.Expense, error) {
	out, err := s.mockStore.ListExpenses(ctx, gameID, turn)
	if err != nil || s.done {
		return out, err
	}
	s.done = true
	g, _ := s.mockStore.GetGame(ctx, gameID)
	players, _ := s.mockStore.ListPlayers(ctx, gameID)
	p2 := players[1]
	p2.HasSubmittedOrders = true
	err = s.mockStore.SaveSubmission(ctx, model.Submission{
		GameID:          gameID,
		Turn:            turn,
		ExpectedVersion: g.Version,
		Player:          p2,
		Orders:          []machiavelli.Order{{UnitID: "a-pad", Player: "p2", Command: machiavelli.Move{Dest: "fer"}}},
	})
	return out, err
}

func TestForceAdvanceRequiresCreator(t *testing.T) {
	store := newMockStore()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(time.Hour))
	svc := newTestTurnService(store, newMockCache(), nil)

	err := svc.ForceAdvance(context.Background(), "g1", "user-2")
	if !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
}

func TestForceAdvanceIgnoresDeadline(t *testing.T) {
	store := newMockStore()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(time.Hour))
	svc := newTestTurnService(store, newMockCache(), nil)

	if err := svc.ForceAdvance(context.Background(), "g1", "user-1"); err != nil {
		t.Fatalf("ForceAdvance: %v", err)
	}
	if store.games["g1"].TurnNumber != 2 {
		t.Error("forced advance should resolve the turn")
	}
}

func TestDiplomaticPhaseOpensOrders(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseDiplomatic, testNow.Add(-time.Second))
	svc := newTestTurnService(store, cache, nil)

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	g := store.games["g1"]
	if g.Phase != machiavelli.PhaseOrders || g.TurnNumber != 1 {
		t.Fatalf("expected orders phase on turn 1, got %s turn %d", g.Phase, g.TurnNumber)
	}
	if len(store.history["g1"]) != 0 {
		t.Error("opening orders must not write history")
	}
	if !cache.timers["g1"].Equal(testNow.Add(time.Hour)) {
		t.Errorf("expected orders deadline timer, got %v", cache.timers["g1"])
	}
}

func TestResolveTurnLeaseHeld(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	cache.leases["g1"] = "other-worker"
	svc := newTestTurnService(store, cache, nil)

	err := svc.ResolveTurn(context.Background(), "g1")
	if !errors.Is(err, repository.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
	if store.commits != 0 {
		t.Error("no commit without the lease")
	}
	if cache.leases["g1"] != "other-worker" {
		t.Error("the other worker's lease must survive")
	}
}

func TestResolveTurnVersionConflict(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	store.commitErr = repository.ErrVersionConflict
	svc := newTestTurnService(store, cache, nil)

	err := svc.ResolveTurn(context.Background(), "g1")
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if _, ok := cache.timers["g1"]; ok {
		t.Error("timer must not move when the commit fails")
	}
}

func TestResolveTurnEndsGame(t *testing.T) {
	store, cache := newMockStore(), newMockCache()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	store.games["g1"].TurnNumber = machiavelli.TimeLimitTurns
	store.games["g1"].Season = machiavelli.Summer
	// a-pad takes the empty city of pad, so p1 needs a clear lead.
	store.games["g1"].Units = append(store.games["g1"].Units,
		machiavelli.Unit{ID: "g-mil", Owner: "p1", Type: machiavelli.Garrison, Province: "mil"},
		machiavelli.Unit{ID: "g-gen", Owner: "p1", Type: machiavelli.Garrison, Province: "gen"})
	cache.timers["g1"] = testNow
	n := &recordingNotifier{}
	svc := newTestTurnService(store, cache, n)

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	g := store.games["g1"]
	if g.Phase != machiavelli.PhaseFinished || !slices.Equal(g.Winners, []machiavelli.PlayerID{"p1"}) {
		t.Fatalf("expected p1 to win on time, got %s %v", g.Phase, g.Winners)
	}
	if _, ok := cache.timers["g1"]; ok {
		t.Error("timer should be cleared when the game ends")
	}
	if !slices.Contains(n.types(), NotifyGameEnded) {
		t.Errorf("expected game_ended, got %v", n.types())
	}

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("resolving a finished game should be a no-op, got %v", err)
	}
	if err := svc.ForceAdvance(context.Background(), "g1", "user-1"); !errors.Is(err, machiavelli.ErrGameFinished) {
		t.Fatalf("expected ErrGameFinished, got %v", err)
	}
}

func TestNotifierPanicDoesNotFailTurn(t *testing.T) {
	store := newMockStore()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	svc := newTestTurnService(store, newMockCache(), &recordingNotifier{panics: true})

	if err := svc.ResolveTurn(context.Background(), "g1"); err != nil {
		t.Fatalf("notifier failure leaked: %v", err)
	}
	if store.commits != 1 {
		t.Error("turn should still be committed")
	}
}

func TestResolveTurnMissingGame(t *testing.T) {
	svc := newTestTurnService(newMockStore(), newMockCache(), nil)
	if err := svc.ResolveTurn(context.Background(), "nope"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	if _, err := svc.History(context.Background(), "nope"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound from History, got %v", err)
	}
}

func TestConcurrentResolutionCommitsOnce(t *testing.T) {
	store := newMockStore()
	seedGame(t, store, machiavelli.PhaseOrders, testNow.Add(-time.Minute))
	svc := newTestTurnService(store, newMockCache(), nil)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() { done <- svc.ResolveTurn(context.Background(), "g1") }()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Errorf("ResolveTurn: %v", err)
		}
	}
	if store.commits != 1 {
		t.Errorf("expected exactly one commit, got %d", store.commits)
	}
}

func TestSeededDiceIsReproducible(t *testing.T) {
	a, b := SeededDice(7), SeededDice(7)
	for i := 0; i < 3; i++ {
		ra, rb := a(), b()
		for j := 0; j < 5; j++ {
			if x, y := ra.D6(), rb.D6(); x != y {
				t.Fatalf("turn %d roll %d: %d != %d", i, j, x, y)
			}
		}
	}
}
