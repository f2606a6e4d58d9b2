package machiavelli

// applyRetreats moves every dislodged unit to the first acceptable province
// on its retreat list, or destroys it. A province is acceptable when the unit
// could move there directly and no other player's unit stands in it.
func applyRetreats(s *TurnState) {
	for _, d := range s.Dislodged {
		u := s.Units[d.UnitID]
		if u == nil {
			continue
		}
		var list []string
		if o := s.Orders[u.ID]; o != nil {
			list = o.RetreatList
		}

		dest := ""
		if u.Type != Garrison {
			for _, cand := range list {
				if retreatAllowed(s, u, d.From, cand) {
					dest = cand
					break
				}
			}
		}

		if dest == "" {
			s.removeUnit(u.ID)
			s.emit(EventNoRetreat, map[string]any{
				"unitId":   string(u.ID),
				"player":   string(u.Owner),
				"unitType": string(u.Type),
				"province": d.From,
			}, "%s in %s has nowhere to retreat and is destroyed", u.ID, d.From)
			continue
		}
		u.Province = dest
		s.emit(EventRetreat, map[string]any{
			"unitId": string(u.ID),
			"player": string(u.Owner),
			"from":   d.From,
			"to":     dest,
		}, "%s retreats from %s to %s", u.ID, d.From, dest)
	}
}

func retreatAllowed(s *TurnState, u *Unit, from, dest string) bool {
	if !s.Map.CanMove(u.Type, from, dest) {
		return false
	}
	for _, other := range s.UnitsAt(dest) {
		if other.Owner != u.Owner {
			return false
		}
	}
	return true
}
