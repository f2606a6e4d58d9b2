package machiavelli

import (
	"sort"
	"time"
)

// Season is one of the three seasons of a game year.
type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
)

// Next returns the following season and whether the year rolls over.
func (s Season) Next() (Season, bool) {
	switch s {
	case Spring:
		return Summer, false
	case Summer:
		return Autumn, false
	default:
		return Spring, true
	}
}

// Phase is the game's current step in the turn loop. PhaseResolution is only
// announced to subscribers while a turn is adjudicated; it is never stored,
// since a run commits straight to the next phase.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseDiplomatic Phase = "diplomatic"
	PhaseOrders     Phase = "orders"
	PhaseResolution Phase = "resolution"
	PhaseFinished   Phase = "finished"
)

// VictoryType describes how a game ended.
type VictoryType string

const (
	VictoryStandard  VictoryType = "standard"
	VictoryTimeLimit VictoryType = "time_limit"
	VictoryShared    VictoryType = "shared"
)

// SiegeState is the per-city siege counter. A zero value means not besieged.
type SiegeState struct {
	Besieger PlayerID `json:"besieger,omitempty"`
	Counter  int      `json:"counter"`
}

// EventsConfig toggles the seasonal random events.
type EventsConfig struct {
	Famine bool `json:"famine"`
	Plague bool `json:"plague"`
}

// Game is the per-game document. Units are embedded.
type Game struct {
	ID                 string                `json:"id"`
	Name               string                `json:"name"`
	CreatorID          string                `json:"creatorId"`
	TurnNumber         int                   `json:"turnNumber"`
	Season             Season                `json:"season"`
	Year               int                   `json:"year"`
	Phase              Phase                 `json:"phase"`
	PhaseDeadline      time.Time             `json:"phaseDeadline"`
	SiegeStatus        map[string]SiegeState `json:"siegeStatus,omitempty"`
	FamineProvinces    []string              `json:"famineProvinces,omitempty"`
	ReliefProvinces    []string              `json:"reliefProvinces,omitempty"`
	EventsConfig       EventsConfig          `json:"eventsConfig"`
	Units              []Unit                `json:"units"`
	Winners            []PlayerID            `json:"winners,omitempty"`
	VictoryType        VictoryType           `json:"victoryType,omitempty"`
	OrdersDuration     time.Duration         `json:"ordersDuration"`
	DiplomaticDuration time.Duration         `json:"diplomaticDuration,omitempty"`
	Version            int64                 `json:"version"`
	// Submissions counts saved order submissions. Saving one bumps it instead
	// of Version, so players submitting at once never conflict.
	Submissions        int64                 `json:"submissions"`
}

// Clone returns a deep copy of the game.
func (g *Game) Clone() *Game {
	c := *g
	c.Units = make([]Unit, len(g.Units))
	for i, u := range g.Units {
		if u.Composition != nil {
			comp := *u.Composition
			u.Composition = &comp
		}
		c.Units[i] = u
	}
	c.SiegeStatus = make(map[string]SiegeState, len(g.SiegeStatus))
	for k, v := range g.SiegeStatus {
		c.SiegeStatus[k] = v
	}
	c.FamineProvinces = append([]string(nil), g.FamineProvinces...)
	c.ReliefProvinces = append([]string(nil), g.ReliefProvinces...)
	c.Winners = append([]PlayerID(nil), g.Winners...)
	return &c
}

// UnitsAt returns all units in the province, sorted by id.
func (g *Game) UnitsAt(province string) []Unit {
	var out []Unit
	for _, u := range g.Units {
		if u.Province == province {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unit returns the unit with the given id, or nil.
func (g *Game) Unit(id UnitID) *Unit {
	for i := range g.Units {
		if g.Units[i].ID == id {
			return &g.Units[i]
		}
	}
	return nil
}

// ControlledCities returns the city provinces where the player has a garrison,
// in map order.
func ControlledCities(m *Map, units []Unit, player PlayerID) []string {
	held := make(map[string]bool)
	for _, u := range units {
		if u.Owner == player && u.Type == Garrison && m.IsCity(u.Province) {
			held[u.Province] = true
		}
	}
	var out []string
	for _, id := range m.Cities() {
		if held[id] {
			out = append(out, id)
		}
	}
	return out
}
