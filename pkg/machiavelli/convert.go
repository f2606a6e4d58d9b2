package machiavelli

// applyConversions changes the type of every unit with a standing convert
// order. Units dislodged this turn do not convert.
func applyConversions(s *TurnState) {
	dislodged := make(map[UnitID]bool, len(s.Dislodged))
	for _, d := range s.Dislodged {
		dislodged[d.UnitID] = true
	}
	for _, id := range s.UnitIDs() {
		u := s.Units[id]
		o := s.Orders[id]
		if o == nil || !o.Valid || dislodged[id] {
			continue
		}
		c, ok := o.Command.(Convert)
		if !ok || !s.Map.CanOccupy(c.To, u.Province) {
			continue
		}
		old := u.Type
		u.Type = c.To
		s.emit(EventConversion, map[string]any{
			"unitId":   string(id),
			"player":   string(u.Owner),
			"province": u.Province,
			"from":     string(old),
			"to":       string(c.To),
		}, "%s in %s converts from %s to %s", id, u.Province, old, c.To)
	}
}
