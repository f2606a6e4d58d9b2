package machiavelli

import "fmt"

// ValidationError describes why an order is illegal.
type ValidationError struct {
	Order  Order
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Order.Describe(), e.Reason)
}

func invalid(o Order, format string, args ...any) error {
	return &ValidationError{Order: o, Reason: fmt.Sprintf(format, args...)}
}

// ValidateOrder checks an order against the unit it commands and the map.
// Returns nil if legal, or a *ValidationError.
func ValidateOrder(o Order, s *TurnState) error {
	u := s.Units[o.UnitID]
	if u == nil {
		return invalid(o, "no unit %s", o.UnitID)
	}

	switch c := o.Command.(type) {
	case nil, Hold:
		return nil
	case Move:
		return validateMove(o, c, u, s.Map)
	case Support:
		return validateSupport(o, c, u, s)
	case Convoy:
		return validateConvoy(o, c, u, s)
	case Besiege:
		return validateBesiege(o, c, u, s)
	case Convert:
		return validateConvert(o, c, u, s.Map)
	default:
		return invalid(o, "unknown action %s", o.Action())
	}
}

func validateMove(o Order, c Move, u *Unit, m *Map) error {
	if u.Type == Garrison {
		return invalid(o, "garrisons cannot move")
	}
	dest := m.Province(c.Dest)
	if dest == nil {
		return invalid(o, "unknown province %q", c.Dest)
	}
	if c.Dest == u.Province {
		return invalid(o, "unit is already in %s", c.Dest)
	}
	if !m.CanOccupy(u.Type, c.Dest) {
		return invalid(o, "%s cannot enter %s terrain", u.Type, dest.Terrain)
	}
	if m.Adjacent(u.Province, c.Dest) {
		return nil
	}
	if u.Type == Army && len(convoySeas(m, u.Province, c.Dest)) > 0 {
		return nil
	}
	return invalid(o, "%s is not adjacent to %s", c.Dest, u.Province)
}

func validateSupport(o Order, c Support, u *Unit, s *TurnState) error {
	if c.Unit == u.ID {
		return invalid(o, "unit cannot support itself")
	}
	supported := s.Units[c.Unit]
	if supported == nil {
		return invalid(o, "supported unit %s does not exist", c.Unit)
	}
	if s.Map.Province(c.Target) == nil {
		return invalid(o, "unknown province %q", c.Target)
	}
	if !s.Map.Adjacent(u.Province, c.Target) && c.Target != u.Province {
		return invalid(o, "%s is not adjacent to %s", c.Target, u.Province)
	}
	if u.Type != Garrison && c.Target != u.Province && !s.Map.CanOccupy(u.Type, c.Target) {
		return invalid(o, "%s cannot support into %s terrain", u.Type, s.Map.Province(c.Target).Terrain)
	}
	if c.Target != supported.Province && !s.Map.Adjacent(supported.Province, c.Target) &&
		(supported.Type != Army || len(convoySeas(s.Map, supported.Province, c.Target)) == 0) {
		return invalid(o, "supported unit %s cannot reach %s", c.Unit, c.Target)
	}
	return nil
}

func validateConvoy(o Order, c Convoy, u *Unit, s *TurnState) error {
	if u.Type != Fleet {
		return invalid(o, "only fleets can convoy")
	}
	if p := s.Map.Province(u.Province); p == nil || p.Terrain != Sea {
		return invalid(o, "fleet must be at sea to convoy")
	}
	if s.Map.Province(c.Dest) == nil {
		return invalid(o, "unknown province %q", c.Dest)
	}
	if c.Army != "" {
		army := s.Units[c.Army]
		if army == nil || army.Type != Army {
			return invalid(o, "convoyed unit %s is not an army", c.Army)
		}
	}
	return nil
}

func validateBesiege(o Order, c Besiege, u *Unit, s *TurnState) error {
	if u.Type == Garrison {
		return invalid(o, "garrisons cannot besiege")
	}
	if c.City != u.Province {
		return invalid(o, "unit must stand in %s to besiege it", c.City)
	}
	if !s.Map.IsCity(c.City) {
		return invalid(o, "%s has no city", c.City)
	}
	if g := s.GarrisonAt(c.City); g != nil && g.Owner == u.Owner {
		return invalid(o, "%s is already held by its owner", c.City)
	}
	return nil
}

func validateConvert(o Order, c Convert, u *Unit, m *Map) error {
	p := m.Province(u.Province)
	switch {
	case u.Type == Fleet && c.To == Army, u.Type == Army && c.To == Fleet:
		if p == nil || !p.IsPort() {
			return invalid(o, "%s to %s conversion requires a port", u.Type, c.To)
		}
		return nil
	case u.Type == Garrison && c.To == Army:
		return nil
	}
	return invalid(o, "cannot convert %s to %s", u.Type, c.To)
}

// validateOrders drops orders for missing or foreign units and downgrades
// every illegal order to hold with an invalid_order event. It never fails.
func validateOrders(s *TurnState) {
	ids := make([]UnitID, 0, len(s.Orders))
	for id := range s.Orders {
		ids = append(ids, id)
	}
	sortUnitIDs(ids)

	for _, id := range ids {
		o := s.Orders[id]
		u := s.Units[id]
		if u == nil {
			s.log.Warn().Str("unitId", string(id)).Msg("order references missing unit, skipped")
			s.emit(EventMissingReference, map[string]any{
				"unitId": string(id),
				"player": string(o.Player),
			}, "order for missing unit %s skipped", id)
			delete(s.Orders, id)
			continue
		}
		if o.Player != "" && o.Player != u.Owner {
			s.log.Warn().Str("unitId", string(id)).Str("player", string(o.Player)).
				Msg("order for a unit the player does not own, skipped")
			delete(s.Orders, id)
			continue
		}
		o.Player = u.Owner

		if err := ValidateOrder(*o, s); err != nil {
			reason := err.Error()
			if ve, ok := err.(*ValidationError); ok {
				reason = ve.Reason
			}
			s.emit(EventInvalidOrder, map[string]any{
				"unitId": string(id),
				"player": string(u.Owner),
				"action": string(o.Action()),
				"reason": reason,
			}, "order %s downgraded to hold: %s", o.Describe(), reason)
			o.Command = Hold{}
			o.Downgraded = true
			o.Reason = reason
		}
		o.Valid = true
	}
}
