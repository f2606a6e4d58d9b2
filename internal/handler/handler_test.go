package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freeeve/machiavelli/internal/auth"
	"github.com/freeeve/machiavelli/internal/model"
	"github.com/freeeve/machiavelli/internal/repository"
	"github.com/freeeve/machiavelli/internal/service"
	"github.com/freeeve/machiavelli/pkg/machiavelli"
)

// --- Fakes ---

type fakeTurns struct {
	game     *machiavelli.Game
	players  []machiavelli.Player
	history  []machiavelli.HistoryEntry
	forceErr error
	forcedBy string
}

func (f *fakeTurns) GetGame(_ context.Context, gameID string) (*machiavelli.Game, []machiavelli.Player, error) {
	if f.game == nil || f.game.ID != gameID {
		return nil, nil, service.ErrGameNotFound
	}
	return f.game, f.players, nil
}

func (f *fakeTurns) ForceAdvance(_ context.Context, gameID, userID string) error {
	if f.forceErr != nil {
		return f.forceErr
	}
	if f.game == nil || f.game.ID != gameID {
		return service.ErrGameNotFound
	}
	f.forcedBy = userID
	f.game.TurnNumber++
	f.game.Season = machiavelli.Summer
	return nil
}

func (f *fakeTurns) History(_ context.Context, gameID string) ([]machiavelli.HistoryEntry, error) {
	if f.game == nil || f.game.ID != gameID {
		return nil, service.ErrGameNotFound
	}
	return f.history, nil
}

type fakeOrders struct {
	got     model.OrderSubmission
	vote    model.VoteRequest
	userID  string
	err     error
	voteErr error
}

func (f *fakeOrders) SubmitOrders(_ context.Context, _, userID string, sub model.OrderSubmission) ([]machiavelli.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got, f.userID = sub, userID
	return sub.Orders, nil
}

func (f *fakeOrders) CastVote(_ context.Context, _, userID string, req model.VoteRequest) (*machiavelli.Vote, error) {
	if f.voteErr != nil {
		return nil, f.voteErr
	}
	f.vote, f.userID = req, userID
	return &machiavelli.Vote{ID: "v1", Voter: "p1", Target: machiavelli.PlayerID(req.Target), Choice: machiavelli.VoteChoice(req.Choice)}, nil
}

func testGame() *fakeTurns {
	return &fakeTurns{
		game: &machiavelli.Game{
			ID: "game-1", CreatorID: "user-1", TurnNumber: 1, Season: machiavelli.Spring, Year: 1454,
			Phase: machiavelli.PhaseOrders, PhaseDeadline: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		players: []machiavelli.Player{
			{ID: "p1", UserID: "user-1", Faction: "Milan", IsAlive: true, Status: machiavelli.StatusActive},
		},
	}
}

// --- Helpers ---

func reqWithUserID(method, path string, body string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := auth.WithUserID(req.Context(), userID)
	req = req.WithContext(ctx)
	req.SetPathValue("id", "game-1")
	return req
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

// --- Game Handler Tests ---

func TestGetGame(t *testing.T) {
	h := NewGameHandler(testGame())

	rec := httptest.NewRecorder()
	h.GetGame(rec, reqWithUserID(http.MethodGet, "/games/game-1", "", "user-2"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		ID      string               `json:"id"`
		Season  string               `json:"season"`
		Players []machiavelli.Player `json:"players"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != "game-1" || got.Season != "spring" || len(got.Players) != 1 {
		t.Errorf("unexpected game body: %s", rec.Body.String())
	}
}

func TestGetGameNotFound(t *testing.T) {
	h := NewGameHandler(&fakeTurns{})

	rec := httptest.NewRecorder()
	h.GetGame(rec, reqWithUserID(http.MethodGet, "/games/game-1", "", "user-1"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewGameHandler(testGame())

	rec := httptest.NewRecorder()
	h.History(rec, reqWithUserID(http.MethodGet, "/games/game-1/history", "", "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestHistory(t *testing.T) {
	turns := testGame()
	turns.history = []machiavelli.HistoryEntry{{GameID: "game-1", TurnNumber: 1, Season: machiavelli.Spring, Year: 1454}}
	h := NewGameHandler(turns)

	rec := httptest.NewRecorder()
	h.History(rec, reqWithUserID(http.MethodGet, "/games/game-1/history", "", "user-1"))

	var entries []machiavelli.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].TurnNumber != 1 {
		t.Errorf("unexpected history: %s", rec.Body.String())
	}
}

func TestForceAdvance(t *testing.T) {
	turns := testGame()
	h := NewGameHandler(turns)

	rec := httptest.NewRecorder()
	h.ForceAdvance(rec, reqWithUserID(http.MethodPost, "/games/game-1/advance", "", "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if turns.forcedBy != "user-1" {
		t.Errorf("expected the caller to be passed through, got %q", turns.forcedBy)
	}
	var got map[string]any
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["turn"] != float64(2) || got["season"] != "summer" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestForceAdvanceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNotCreator, http.StatusForbidden},
		{service.ErrGameNotFound, http.StatusNotFound},
		{service.ErrWrongPhase, http.StatusConflict},
		{machiavelli.ErrGameFinished, http.StatusConflict},
		{fmt.Errorf("acquire lease: %w", repository.ErrLeaseHeld), http.StatusConflict},
		{fmt.Errorf("commit turn: %w", repository.ErrVersionConflict), http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			turns := testGame()
			turns.forceErr = tt.err
			h := NewGameHandler(turns)

			rec := httptest.NewRecorder()
			h.ForceAdvance(rec, reqWithUserID(http.MethodPost, "/games/game-1/advance", "", "user-2"))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	turns := testGame()
	turns.forceErr = errors.New("pq: password authentication failed")
	h := NewGameHandler(turns)

	rec := httptest.NewRecorder()
	h.ForceAdvance(rec, reqWithUserID(http.MethodPost, "/games/game-1/advance", "", "user-1"))

	if msg := errorBody(t, rec); msg != "internal error" {
		t.Errorf("expected a generic message, got %q", msg)
	}
}

// --- Order Handler Tests ---

func TestSubmitOrders(t *testing.T) {
	orders := &fakeOrders{}
	h := NewOrderHandler(orders)

	body := `{"orders":[{"unitId":"a-mil","action":"move","destination":"ver"}],
		"expenses":[{"kind":"transfer","amount":3,"targetPlayer":"p2"}]}`
	rec := httptest.NewRecorder()
	h.SubmitOrders(rec, reqWithUserID(http.MethodPost, "/games/game-1/orders", body, "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if orders.userID != "user-1" {
		t.Errorf("expected user-1, got %s", orders.userID)
	}
	if len(orders.got.Orders) != 1 || len(orders.got.Expenses) != 1 {
		t.Fatalf("unexpected submission: %+v", orders.got)
	}
	if mv, ok := orders.got.Orders[0].Command.(machiavelli.Move); !ok || mv.Dest != "ver" {
		t.Errorf("expected move to ver, got %#v", orders.got.Orders[0].Command)
	}
}

func TestSubmitOrdersBadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"unknown action", `{"orders":[{"unitId":"a-mil","action":"fly"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&fakeOrders{})
			rec := httptest.NewRecorder()
			h.SubmitOrders(rec, reqWithUserID(http.MethodPost, "/games/game-1/orders", tt.body, "user-1"))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestSubmitOrdersErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrGameNotFound, http.StatusNotFound},
		{service.ErrNotInGame, http.StatusForbidden},
		{fmt.Errorf("%w: a-pad", service.ErrNotYourUnit), http.StatusForbidden},
		{service.ErrPlayerNotActive, http.StatusForbidden},
		{service.ErrWrongPhase, http.StatusConflict},
		{fmt.Errorf("%w: not adjacent", service.ErrInvalidOrder), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: insufficient funds", service.ErrInvalidExpense), http.StatusUnprocessableEntity},
		{fmt.Errorf("save submission: %w", repository.ErrVersionConflict), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewOrderHandler(&fakeOrders{err: tt.err})
			rec := httptest.NewRecorder()
			h.SubmitOrders(rec, reqWithUserID(http.MethodPost, "/games/game-1/orders", `{"orders":[]}`, "user-1"))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if msg := errorBody(t, rec); msg != tt.err.Error() {
				t.Errorf("expected %q, got %q", tt.err.Error(), msg)
			}
		})
	}
}

func TestCastVote(t *testing.T) {
	orders := &fakeOrders{}
	h := NewOrderHandler(orders)

	rec := httptest.NewRecorder()
	h.CastVote(rec, reqWithUserID(http.MethodPost, "/games/game-1/votes",
		`{"target_player_id":"p2","choice":"replacement"}`, "user-1"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if orders.vote.Target != "p2" || orders.vote.Choice != "replacement" {
		t.Errorf("unexpected vote request %+v", orders.vote)
	}
}

func TestCastVoteMissingFields(t *testing.T) {
	h := NewOrderHandler(&fakeOrders{})

	rec := httptest.NewRecorder()
	h.CastVote(rec, reqWithUserID(http.MethodPost, "/games/game-1/votes", `{"choice":"ai_mode"}`, "user-1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCastVoteInvalid(t *testing.T) {
	h := NewOrderHandler(&fakeOrders{voteErr: fmt.Errorf("%w: cannot vote on yourself", service.ErrInvalidVote)})

	rec := httptest.NewRecorder()
	h.CastVote(rec, reqWithUserID(http.MethodPost, "/games/game-1/votes",
		`{"target_player_id":"p1","choice":"ai_mode"}`, "user-1"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}
