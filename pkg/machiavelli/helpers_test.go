package machiavelli

import (
	"fmt"
	"testing"
	"time"
)

// scriptedDice returns queued rolls, then 1s and 0s once exhausted.
type scriptedDice struct {
	rolls []int
	picks []int
}

func (d *scriptedDice) D6() int {
	if len(d.rolls) == 0 {
		return 1
	}
	r := d.rolls[0]
	d.rolls = d.rolls[1:]
	return r
}

func (d *scriptedDice) Intn(n int) int {
	if len(d.picks) == 0 {
		return 0
	}
	p := d.picks[0]
	d.picks = d.picks[1:]
	return p % n
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new%d", n)
	}
}

func army(id, owner, prov string) Unit {
	return Unit{ID: UnitID(id), Owner: PlayerID(owner), Type: Army, Province: prov}
}

func fleet(id, owner, prov string) Unit {
	return Unit{ID: UnitID(id), Owner: PlayerID(owner), Type: Fleet, Province: prov}
}

func garrison(id, owner, prov string) Unit {
	return Unit{ID: UnitID(id), Owner: PlayerID(owner), Type: Garrison, Province: prov}
}

func player(id string) Player {
	return Player{
		ID:                 PlayerID(id),
		Faction:            id,
		IsAlive:            true,
		Status:             StatusActive,
		HasSubmittedOrders: true,
		AssassinTokens:     map[PlayerID]bool{},
	}
}

func players(ids ...string) []Player {
	out := make([]Player, len(ids))
	for i, id := range ids {
		out[i] = player(id)
	}
	return out
}

func testGame(season Season, units ...Unit) *Game {
	return &Game{
		ID:             "g1",
		TurnNumber:     1,
		Season:         season,
		Year:           1454,
		Phase:          PhaseOrders,
		Units:          units,
		OrdersDuration: 24 * time.Hour,
	}
}

// stateWith builds a summer state (no income, no random events) for p1..p3.
func stateWith(units ...Unit) *TurnState {
	s := NewTurnState(ItalyMap(), testGame(Summer, units...), players("p1", "p2", "p3"), nil)
	s.dice = &scriptedDice{}
	s.newID = seqIDs()
	return s
}

func order(unit string, cmd Command, retreat ...string) Order {
	return Order{UnitID: UnitID(unit), Command: cmd, RetreatList: retreat}
}

func withOrders(s *TurnState, orders ...Order) *TurnState {
	for i := range orders {
		o := orders[i]
		s.Orders[o.UnitID] = &o
	}
	return s
}

// adjudicate runs validation, movement and retreats.
func adjudicate(t *testing.T, s *TurnState) {
	t.Helper()
	validateOrders(s)
	if err := resolveMovement(s); err != nil {
		t.Fatalf("resolveMovement: %v", err)
	}
	applyRetreats(s)
}

func eventsOf(s *TurnState, typ EventType) []TurnEvent {
	return filterEvents(s.Events, typ)
}

func filterEvents(events []TurnEvent, typ EventType) []TurnEvent {
	var out []TurnEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func provinceOf(t *testing.T, s *TurnState, id string) string {
	t.Helper()
	u := s.Units[UnitID(id)]
	if u == nil {
		t.Fatalf("unit %s no longer exists", id)
	}
	return u.Province
}

func newResolver(dice Roller) *Resolver {
	r := NewResolver(ItalyMap(), dice, seqIDs())
	r.Now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return r
}
