package machiavelli

import (
	"sort"

	"github.com/rs/zerolog"
)

// ExpenseKind names a same-turn spending action.
type ExpenseKind string

const (
	ExpenseTransfer      ExpenseKind = "transfer"
	ExpenseAssassination ExpenseKind = "assassination"
	ExpenseBribe         ExpenseKind = "bribe"
	ExpenseFamineRelief  ExpenseKind = "famine_relief"
)

// Expense is a spending action submitted alongside orders.
type Expense struct {
	ID           string      `json:"id"`
	Player       PlayerID    `json:"player"`
	Kind         ExpenseKind `json:"kind"`
	Amount       int         `json:"amount,omitempty"`
	TargetPlayer PlayerID    `json:"targetPlayer,omitempty"`
	TargetUnit   UnitID      `json:"targetUnit,omitempty"`
	Province     string      `json:"province,omitempty"`
	HitNumbers   []int       `json:"hitNumbers,omitempty"`
}

// VoteChoice is a ballot option for an inactive player.
type VoteChoice string

const (
	VoteAIMode      VoteChoice = "ai_mode"
	VoteReplacement VoteChoice = "replacement"
	VoteElimination VoteChoice = "elimination"
)

// Valid reports whether c is a known ballot option.
func (c VoteChoice) Valid() bool {
	return c == VoteAIMode || c == VoteReplacement || c == VoteElimination
}

// Vote is one player's ballot about an inactive player.
type Vote struct {
	ID     string     `json:"id"`
	Voter  PlayerID   `json:"voter"`
	Target PlayerID   `json:"target"`
	Choice VoteChoice `json:"choice"`
}

// Dislodged records a unit that lost a battle and must retreat.
type Dislodged struct {
	UnitID       UnitID
	From         string
	AttackerFrom string
}

// TurnState is the resolution state threaded through every stage. All
// entities live in id-indexed maps and reference each other by id.
type TurnState struct {
	Game     *Game
	Map      *Map
	Players  map[PlayerID]*Player
	Units    map[UnitID]*Unit
	Orders   map[UnitID]*Order
	Expenses []Expense
	Votes    []Vote

	// Snapshot is the per-player treasury captured after maintenance.
	Snapshot  map[PlayerID]int
	Dislodged []Dislodged
	Events    []TurnEvent

	// ProcessedVotes lists vote ids tallied this turn.
	ProcessedVotes []string
	// Warnings lists players who picked up an inactivity strike.
	Warnings []InactivityWarning

	playerOrder []PlayerID
	dice        Roller
	newID       func() string
	log         zerolog.Logger
}

// InactivityWarning reports a strike against a player who missed orders.
type InactivityWarning struct {
	Player  PlayerID
	UserID  string
	Strikes int
}

// NewTurnState builds a resolution state from loaded documents. The inputs
// are copied; the caller's values are never mutated.
func NewTurnState(m *Map, game *Game, players []Player, orders []Order) *TurnState {
	g := game.Clone()
	s := &TurnState{
		Game:     g,
		Map:      m,
		Players:  make(map[PlayerID]*Player, len(players)),
		Units:    make(map[UnitID]*Unit, len(g.Units)),
		Orders:   make(map[UnitID]*Order, len(orders)),
		Snapshot: make(map[PlayerID]int, len(players)),
		log:      zerolog.Nop(),
	}
	for i := range players {
		p := players[i].Clone()
		s.Players[p.ID] = &p
		s.playerOrder = append(s.playerOrder, p.ID)
	}
	for i := range g.Units {
		u := g.Units[i]
		s.Units[u.ID] = &u
	}
	g.Units = nil
	for i := range orders {
		o := orders[i]
		o.RetreatList = append([]string(nil), o.RetreatList...)
		s.Orders[o.UnitID] = &o
	}
	return s
}

// UnitIDs returns all unit ids in sorted order.
func (s *TurnState) UnitIDs() []UnitID {
	ids := make([]UnitID, 0, len(s.Units))
	for id := range s.Units {
		ids = append(ids, id)
	}
	sortUnitIDs(ids)
	return ids
}

func sortUnitIDs(ids []UnitID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// PlayerIDs returns player ids in the order they were loaded.
func (s *TurnState) PlayerIDs() []PlayerID {
	return s.playerOrder
}

// UnitsAt returns the units in a province sorted by id.
func (s *TurnState) UnitsAt(province string) []*Unit {
	var out []*Unit
	for _, id := range s.UnitIDs() {
		if u := s.Units[id]; u.Province == province {
			out = append(out, u)
		}
	}
	return out
}

// UnitsOf returns the player's units sorted by id.
func (s *TurnState) UnitsOf(player PlayerID) []*Unit {
	var out []*Unit
	for _, id := range s.UnitIDs() {
		if u := s.Units[id]; u.Owner == player {
			out = append(out, u)
		}
	}
	return out
}

// GarrisonAt returns the garrison in the province, or nil.
func (s *TurnState) GarrisonAt(province string) *Unit {
	for _, u := range s.UnitsAt(province) {
		if u.Type == Garrison {
			return u
		}
	}
	return nil
}

// OrderFor returns the unit's order, defaulting to hold.
func (s *TurnState) OrderFor(id UnitID) *Order {
	if o, ok := s.Orders[id]; ok {
		return o
	}
	u := s.Units[id]
	if u == nil {
		return nil
	}
	o := HoldOrder(*u)
	s.Orders[id] = &o
	return &o
}

// removeUnit destroys a unit and drops its order.
func (s *TurnState) removeUnit(id UnitID) {
	delete(s.Units, id)
	delete(s.Orders, id)
}

// forceHold replaces the unit's order with a hold, keeping its retreat list.
func (s *TurnState) forceHold(id UnitID, reason string) {
	o := s.OrderFor(id)
	if o == nil {
		return
	}
	o.Command = Hold{}
	o.Valid = true
	o.Downgraded = true
	o.Reason = reason
}

// CityCount returns the number of cities the player holds with a garrison.
func (s *TurnState) CityCount(player PlayerID) int {
	return len(s.controlledCities(player))
}

func (s *TurnState) controlledCities(player PlayerID) []string {
	units := make([]Unit, 0, len(s.Units))
	for _, u := range s.Units {
		units = append(units, *u)
	}
	return ControlledCities(s.Map, units, player)
}

// alivePlayers returns alive player ids in load order.
func (s *TurnState) alivePlayers() []PlayerID {
	var out []PlayerID
	for _, id := range s.playerOrder {
		if p := s.Players[id]; p.IsAlive && p.Status != StatusEliminated {
			out = append(out, id)
		}
	}
	return out
}

// unitSlice returns the units sorted by id.
func (s *TurnState) unitSlice() []Unit {
	out := make([]Unit, 0, len(s.Units))
	for _, id := range s.UnitIDs() {
		out = append(out, *s.Units[id])
	}
	return out
}
