package machiavelli

import (
	"encoding/json"
	"fmt"
)

// Action names the kind of order. It is the wire tag of the order union.
type Action string

const (
	ActionHold    Action = "hold"
	ActionMove    Action = "move"
	ActionSupport Action = "support"
	ActionConvoy  Action = "convoy"
	ActionBesiege Action = "besiege"
	ActionConvert Action = "convert"
)

// Command is the action-specific part of an order. Each variant carries only
// the fields its action needs.
type Command interface {
	Action() Action
}

// Hold keeps the unit in place.
type Hold struct{}

// Move sends the unit to an adjacent (or convoy-reachable) province.
type Move struct {
	Dest string
}

// Support adds one to the strength of another unit. When the supported unit
// moves into Target the support backs the attack, otherwise it backs the
// defense of Target.
type Support struct {
	Unit   UnitID
	Target string
}

// Convoy carries an army across the fleet's sea province. An empty Army
// convoys any army moving to Dest.
type Convoy struct {
	Army UnitID
	Dest string
}

// Besiege lays siege to the city the unit stands in.
type Besiege struct {
	City string
}

// Convert changes the unit's type in place.
type Convert struct {
	To UnitType
}

func (Hold) Action() Action    { return ActionHold }
func (Move) Action() Action    { return ActionMove }
func (Support) Action() Action { return ActionSupport }
func (Convoy) Action() Action  { return ActionConvoy }
func (Besiege) Action() Action { return ActionBesiege }
func (Convert) Action() Action { return ActionConvert }

// Order is one unit's instruction for a turn.
type Order struct {
	UnitID      UnitID
	Player      PlayerID
	Command     Command
	RetreatList []string

	// Set by resolution.
	Valid      bool
	Downgraded bool
	Reason     string
}

// HoldOrder returns an explicit hold for the unit.
func HoldOrder(u Unit) Order {
	return Order{UnitID: u.ID, Player: u.Owner, Command: Hold{}, Valid: true}
}

// Action returns the order's action, treating a missing command as hold.
func (o Order) Action() Action {
	if o.Command == nil {
		return ActionHold
	}
	return o.Command.Action()
}

// Describe returns a human-readable description of the order.
func (o Order) Describe() string {
	switch c := o.Command.(type) {
	case Move:
		return fmt.Sprintf("%s -> %s", o.UnitID, c.Dest)
	case Support:
		return fmt.Sprintf("%s S %s into %s", o.UnitID, c.Unit, c.Target)
	case Convoy:
		if c.Army == "" {
			return fmt.Sprintf("%s C -> %s", o.UnitID, c.Dest)
		}
		return fmt.Sprintf("%s C %s -> %s", o.UnitID, c.Army, c.Dest)
	case Besiege:
		return fmt.Sprintf("%s besiege %s", o.UnitID, c.City)
	case Convert:
		return fmt.Sprintf("%s convert to %s", o.UnitID, c.To)
	default:
		return fmt.Sprintf("%s hold", o.UnitID)
	}
}

// orderJSON is the wire form of an order.
type orderJSON struct {
	UnitID         UnitID   `json:"unitId"`
	Player         PlayerID `json:"player,omitempty"`
	Action         Action   `json:"action"`
	Destination    string   `json:"destination,omitempty"`
	SupportedUnit  UnitID   `json:"supportedUnit,omitempty"`
	TargetProvince string   `json:"targetProvince,omitempty"`
	ConvoyedArmy   UnitID   `json:"convoyedArmy,omitempty"`
	ToType         UnitType `json:"toType,omitempty"`
	RetreatList    []string `json:"retreatList,omitempty"`
	Valid          bool     `json:"isValid"`
	Downgraded     bool     `json:"downgraded,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// MarshalJSON encodes the order with its command flattened under "action".
func (o Order) MarshalJSON() ([]byte, error) {
	w := orderJSON{
		UnitID:      o.UnitID,
		Player:      o.Player,
		Action:      o.Action(),
		RetreatList: o.RetreatList,
		Valid:       o.Valid,
		Downgraded:  o.Downgraded,
		Reason:      o.Reason,
	}
	switch c := o.Command.(type) {
	case Move:
		w.Destination = c.Dest
	case Support:
		w.SupportedUnit = c.Unit
		w.TargetProvince = c.Target
	case Convoy:
		w.ConvoyedArmy = c.Army
		w.Destination = c.Dest
	case Besiege:
		w.TargetProvince = c.City
	case Convert:
		w.ToType = c.To
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an order, rejecting unknown actions.
func (o *Order) UnmarshalJSON(data []byte) error {
	var w orderJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var cmd Command
	switch w.Action {
	case ActionHold, "":
		cmd = Hold{}
	case ActionMove:
		cmd = Move{Dest: w.Destination}
	case ActionSupport:
		cmd = Support{Unit: w.SupportedUnit, Target: w.TargetProvince}
	case ActionConvoy:
		cmd = Convoy{Army: w.ConvoyedArmy, Dest: w.Destination}
	case ActionBesiege:
		cmd = Besiege{City: w.TargetProvince}
	case ActionConvert:
		cmd = Convert{To: w.ToType}
	default:
		return fmt.Errorf("unknown order action %q", w.Action)
	}
	*o = Order{
		UnitID:      w.UnitID,
		Player:      w.Player,
		Command:     cmd,
		RetreatList: w.RetreatList,
		Valid:       w.Valid,
		Downgraded:  w.Downgraded,
		Reason:      w.Reason,
	}
	return nil
}
