package machiavelli

import "sort"

// applySpecialEvents runs the seasonal random events before any order is
// looked at. Famine strikes in spring and its markers clear when summer
// starts; plague may strike in summer. Grain stored by famine relief spares
// the units of its province from the next famine roll and is then used up.
func applySpecialEvents(s *TurnState) {
	switch s.Game.Season {
	case Spring:
		if s.Game.EventsConfig.Famine {
			applyFamine(s)
		}
	case Summer:
		if len(s.Game.FamineProvinces) > 0 {
			s.emit(EventFamineCleared, map[string]any{"provinces": append([]string(nil), s.Game.FamineProvinces...)},
				"famine has ended")
			s.Game.FamineProvinces = nil
		}
		if s.Game.EventsConfig.Plague {
			applyPlague(s)
		}
	}
}

func famineCount(roll int) int {
	switch {
	case roll <= 2:
		return 0
	case roll <= 4:
		return 1
	default:
		return 2
	}
}

func applyFamine(s *TurnState) {
	relieved := make(map[string]bool, len(s.Game.ReliefProvinces))
	for _, p := range s.Game.ReliefProvinces {
		relieved[p] = true
	}
	s.Game.ReliefProvinces = nil

	n := famineCount(s.dice.D6())
	if n == 0 {
		return
	}
	marked := make(map[string]bool)
	for _, p := range s.Game.FamineProvinces {
		marked[p] = true
	}
	var candidates []string
	for _, id := range s.Map.ProvinceIDs() {
		if s.Map.Province(id).Terrain != Sea && !marked[id] {
			candidates = append(candidates, id)
		}
	}
	for i := 0; i < n && len(candidates) > 0; i++ {
		k := s.dice.Intn(len(candidates))
		prov := candidates[k]
		candidates = append(candidates[:k], candidates[k+1:]...)
		s.Game.FamineProvinces = append(s.Game.FamineProvinces, prov)
		if relieved[prov] {
			s.emit(EventFamine, map[string]any{
				"province":  prov,
				"destroyed": []string{},
				"relieved":  true,
			}, "famine strikes %s, stored grain feeds the troops", s.Map.Province(prov).Name)
			continue
		}
		destroyed := destroyUnitsIn(s, prov)
		s.emit(EventFamine, map[string]any{
			"province":  prov,
			"destroyed": destroyed,
		}, "famine strikes %s, %d units lost", s.Map.Province(prov).Name, len(destroyed))
	}
	sort.Strings(s.Game.FamineProvinces)
}

func applyPlague(s *TurnState) {
	if s.dice.D6() < 5 {
		return
	}
	var candidates []string
	for _, id := range s.Map.ProvinceIDs() {
		if s.Map.Province(id).Terrain != Sea {
			candidates = append(candidates, id)
		}
	}
	prov := candidates[s.dice.Intn(len(candidates))]
	destroyed := destroyUnitsIn(s, prov)
	s.emit(EventPlague, map[string]any{
		"province":  prov,
		"destroyed": destroyed,
	}, "plague strikes %s, %d units lost", s.Map.Province(prov).Name, len(destroyed))
}

// destroyUnitsIn removes every unit in the province and returns their ids.
func destroyUnitsIn(s *TurnState, prov string) []string {
	var ids []string
	for _, u := range s.UnitsAt(prov) {
		ids = append(ids, string(u.ID))
		s.removeUnit(u.ID)
	}
	return ids
}
