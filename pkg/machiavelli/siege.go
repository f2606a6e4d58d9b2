package machiavelli

import "sort"

// SiegeCaptureTurns is the number of consecutive besieging turns that take a city.
const SiegeCaptureTurns = 2

// applySieges advances the per-city siege counters. A city whose siege orders
// vanish is lifted; a besieger changing restarts the count; reaching
// SiegeCaptureTurns replaces the garrison with one owned by the besieger.
// Cities left with no garrison but an occupant are then captured outright.
func applySieges(s *TurnState) {
	if s.Game.SiegeStatus == nil {
		s.Game.SiegeStatus = make(map[string]SiegeState)
	}

	besiegers := make(map[string][]*Unit)
	for _, id := range s.UnitIDs() {
		u := s.Units[id]
		u.SiegeTurns = 0
		o := s.Orders[id]
		if o == nil || !o.Valid {
			continue
		}
		c, ok := o.Command.(Besiege)
		if !ok || u.Province != c.City {
			continue
		}
		besiegers[c.City] = append(besiegers[c.City], u)
	}

	cities := make([]string, 0, len(besiegers)+len(s.Game.SiegeStatus))
	seen := make(map[string]bool)
	for city := range besiegers {
		cities = append(cities, city)
		seen[city] = true
	}
	for city := range s.Game.SiegeStatus {
		if !seen[city] {
			cities = append(cities, city)
		}
	}
	sort.Strings(cities)

	for _, city := range cities {
		advanceSiege(s, city, besiegers[city])
	}
	autoCapture(s)
}

func advanceSiege(s *TurnState, city string, units []*Unit) {
	st := s.Game.SiegeStatus[city]
	if len(units) == 0 {
		delete(s.Game.SiegeStatus, city)
		if st.Counter > 0 {
			s.emit(EventSiegeLifted, map[string]any{
				"city":     city,
				"besieger": string(st.Besieger),
			}, "the siege of %s is lifted", city)
		}
		return
	}

	owner := units[0].Owner
	for _, u := range units {
		if u.Owner == st.Besieger {
			owner = st.Besieger
			break
		}
	}
	garrison := s.GarrisonAt(city)
	if garrison != nil && garrison.Owner == owner {
		delete(s.Game.SiegeStatus, city)
		return
	}

	if st.Besieger == owner && st.Counter > 0 {
		st.Counter++
		s.emit(EventSiegeContinued, map[string]any{
			"city":     city,
			"besieger": string(owner),
			"counter":  st.Counter,
		}, "the siege of %s continues (turn %d)", city, st.Counter)
	} else {
		st = SiegeState{Besieger: owner, Counter: 1}
		s.emit(EventSiegeStarted, map[string]any{
			"city":     city,
			"besieger": string(owner),
			"counter":  st.Counter,
		}, "siege of %s begins", city)
	}
	for _, u := range units {
		if u.Owner == owner {
			u.SiegeTurns = st.Counter
		}
	}

	if st.Counter < SiegeCaptureTurns {
		s.Game.SiegeStatus[city] = st
		return
	}

	delete(s.Game.SiegeStatus, city)
	for _, u := range units {
		u.SiegeTurns = 0
	}
	var previous PlayerID
	if garrison != nil {
		previous = garrison.Owner
		s.removeUnit(garrison.ID)
	}
	g := spawnGarrison(s, owner, city)
	s.emit(EventCityCaptured, map[string]any{
		"city":          city,
		"player":        string(owner),
		"previousOwner": string(previous),
		"garrisonId":    string(g.ID),
		"siege":         true,
	}, "%s falls after a siege", city)
}

// autoCapture garrisons every city that has an occupant but no garrison.
func autoCapture(s *TurnState) {
	for _, city := range s.Map.Cities() {
		occupants := s.UnitsAt(city)
		if len(occupants) == 0 || s.GarrisonAt(city) != nil {
			continue
		}
		owner := occupants[0].Owner
		g := spawnGarrison(s, owner, city)
		delete(s.Game.SiegeStatus, city)
		s.emit(EventCityCaptured, map[string]any{
			"city":       city,
			"player":     string(owner),
			"garrisonId": string(g.ID),
			"siege":      false,
		}, "%s is occupied", city)
	}
}

func spawnGarrison(s *TurnState, owner PlayerID, city string) *Unit {
	u := &Unit{ID: UnitID(s.newID()), Owner: owner, Type: Garrison, Province: city}
	s.Units[u.ID] = u
	return u
}
