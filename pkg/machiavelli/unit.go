package machiavelli

import "fmt"

// PlayerID identifies a player within one game.
type PlayerID string

// UnitID identifies a unit within one game.
type UnitID string

// UnitType is the kind of a military unit.
type UnitType string

const (
	Army     UnitType = "army"
	Fleet    UnitType = "fleet"
	Garrison UnitType = "garrison"
)

// Valid reports whether t is one of the known unit types.
func (t UnitType) Valid() bool {
	return t == Army || t == Fleet || t == Garrison
}

// Composition records the troop or ship counts behind a unit. It is carried
// through resolution unchanged.
type Composition struct {
	Troops int `json:"troops,omitempty"`
	Ships  int `json:"ships,omitempty"`
}

// Unit is a single military unit on the board.
type Unit struct {
	ID          UnitID       `json:"id"`
	Owner       PlayerID     `json:"owner"`
	Type        UnitType     `json:"type"`
	Province    string       `json:"province"`
	Composition *Composition `json:"composition,omitempty"`
	SiegeTurns  int          `json:"siegeTurns,omitempty"`
}

func (u Unit) String() string {
	return fmt.Sprintf("%s %s (%s) at %s", u.Owner, u.Type, u.ID, u.Province)
}

// maintenanceHalves is the unit's upkeep in half-ducats.
func (u Unit) maintenanceHalves() int {
	if u.Type == Garrison {
		return 1
	}
	return 2
}

// PlayerStatus is a player's participation state.
type PlayerStatus string

const (
	StatusActive              PlayerStatus = "active"
	StatusInactive            PlayerStatus = "inactive"
	StatusAwaitingReplacement PlayerStatus = "awaiting_replacement"
	StatusEliminated          PlayerStatus = "eliminated"
)

// InactivityThreshold is the number of consecutive missed turns after which
// a player becomes inactive.
const InactivityThreshold = 3

// Player is one seat in a game.
type Player struct {
	ID                 PlayerID          `json:"id"`
	UserID             string            `json:"userId,omitempty"`
	Faction            string            `json:"faction"`
	Treasury           int               `json:"treasury"`
	IsAlive            bool              `json:"isAlive"`
	Status             PlayerStatus      `json:"status"`
	InactivityCounter  int               `json:"inactivityCounter"`
	AssassinTokens     map[PlayerID]bool `json:"assassinTokens,omitempty"`
	HasSubmittedOrders bool              `json:"hasSubmittedOrders"`
	Cities             []string          `json:"cities,omitempty"`
}

// Clone returns a deep copy of the player.
func (p Player) Clone() Player {
	c := p
	if p.AssassinTokens != nil {
		c.AssassinTokens = make(map[PlayerID]bool, len(p.AssassinTokens))
		for k, v := range p.AssassinTokens {
			c.AssassinTokens[k] = v
		}
	}
	c.Cities = append([]string(nil), p.Cities...)
	return c
}
