package machiavelli

import (
	"fmt"
	"slices"
	"sort"
)

const (
	// IncomePerCity is the spring income for each garrisoned city.
	IncomePerCity = 3

	AssassinationCostPerNumber = 12
	BribeGarrisonCost          = 6
	BribeFieldUnitCost         = 9
	FamineReliefCost           = 3

	maxHitNumbers = 3
)

const reasonInsufficientFunds = "insufficient funds"

// applyIncomeAndMaintenance collects spring income and pays upkeep, disbanding
// units when a player cannot cover it. Armies and fleets go before garrisons.
func applyIncomeAndMaintenance(s *TurnState) {
	if s.Game.Season != Spring {
		return
	}
	for _, pid := range s.alivePlayers() {
		p := s.Players[pid]
		cities := s.CityCount(pid)
		income := IncomePerCity * cities
		p.Treasury += income
		s.emit(EventIncome, map[string]any{
			"player": string(pid),
			"cities": cities,
			"amount": income,
		}, "%s collects %d ducats from %d cities", p.Faction, income, cities)

		units := s.UnitsOf(pid)
		halves := 0
		for _, u := range units {
			halves += u.maintenanceHalves()
		}
		upkeep := (halves + 1) / 2
		p.Treasury -= upkeep
		s.emit(EventMaintenance, map[string]any{
			"player": string(pid),
			"units":  len(units),
			"amount": upkeep,
		}, "%s pays %d ducats upkeep for %d units", p.Faction, upkeep, len(units))

		if p.Treasury < 0 {
			disbandForDebt(s, p, units)
			p.Treasury = 0
		}
	}
}

// disbandForDebt removes units until the deficit is covered, counting a
// garrison as half a ducat.
func disbandForDebt(s *TurnState, p *Player, units []*Unit) {
	deficit := -p.Treasury * 2
	var order []*Unit
	for _, u := range units {
		if u.Type != Garrison {
			order = append(order, u)
		}
	}
	for _, u := range units {
		if u.Type == Garrison {
			order = append(order, u)
		}
	}
	for _, u := range order {
		if deficit <= 0 {
			break
		}
		deficit -= u.maintenanceHalves()
		s.removeUnit(u.ID)
		s.emit(EventUnitDisbanded, map[string]any{
			"player":   string(p.ID),
			"unitId":   string(u.ID),
			"unitType": string(u.Type),
			"province": u.Province,
		}, "%s disbands %s in %s for lack of funds", p.Faction, u.Type, u.Province)
	}
}

// takeSnapshot records every player's treasury. Same-turn spends are checked
// against this value, not the live balance.
func takeSnapshot(s *TurnState) {
	for id, p := range s.Players {
		s.Snapshot[id] = p.Treasury
	}
}

// ExpenseCost returns the ducat cost of an expense given the current units.
func ExpenseCost(e Expense, units map[UnitID]*Unit) int {
	switch e.Kind {
	case ExpenseTransfer:
		return e.Amount
	case ExpenseAssassination:
		return AssassinationCostPerNumber * len(e.HitNumbers)
	case ExpenseBribe:
		if u := units[e.TargetUnit]; u != nil && u.Type == Garrison {
			return BribeGarrisonCost
		}
		return BribeFieldUnitCost
	case ExpenseFamineRelief:
		return FamineReliefCost
	}
	return 0
}

// processExpenses applies the turn's spending in submission order. Every
// spend is checked against the snapshot, then deducted from the live
// treasury, which is clamped to zero at the end.
func processExpenses(s *TurnState) {
	for _, e := range s.Expenses {
		payer := s.Players[e.Player]
		if payer == nil || !payer.IsAlive {
			s.log.Warn().Str("expenseId", e.ID).Str("player", string(e.Player)).
				Msg("expense references missing player, skipped")
			s.emit(EventMissingReference, map[string]any{
				"expenseId": e.ID,
				"player":    string(e.Player),
			}, "expense %s from missing player %s skipped", e.ID, e.Player)
			continue
		}
		evType := expenseEvent(e.Kind)
		if evType == "" {
			s.log.Warn().Str("expenseId", e.ID).Str("kind", string(e.Kind)).Msg("unknown expense kind, skipped")
			continue
		}

		if reason := checkExpense(s, e); reason != "" {
			s.emit(evType, expenseData(e, false, reason), "%s %s failed: %s", payer.Faction, e.Kind, reason)
			continue
		}
		cost := ExpenseCost(e, s.Units)
		if cost > s.Snapshot[e.Player] {
			s.emit(evType, expenseData(e, false, reasonInsufficientFunds),
				"%s %s failed: %s (cost %d, snapshot %d)", payer.Faction, e.Kind, reasonInsufficientFunds, cost, s.Snapshot[e.Player])
			continue
		}
		payer.Treasury -= cost

		switch e.Kind {
		case ExpenseTransfer:
			target := s.Players[e.TargetPlayer]
			target.Treasury += e.Amount
			data := expenseData(e, true, "")
			data["amount"] = e.Amount
			s.emit(evType, data, "%s sends %d ducats to %s", payer.Faction, e.Amount, target.Faction)

		case ExpenseAssassination:
			attemptAssassination(s, e, payer)

		case ExpenseBribe:
			u := s.Units[e.TargetUnit]
			prev := u.Owner
			u.Owner = e.Player
			s.forceHold(u.ID, "bribed")
			data := expenseData(e, true, "")
			data["previousOwner"] = string(prev)
			s.emit(evType, data, "%s bribes %s in %s", payer.Faction, u.Type, u.Province)

		case ExpenseFamineRelief:
			s.Game.ReliefProvinces = append(s.Game.ReliefProvinces, e.Province)
			sort.Strings(s.Game.ReliefProvinces)
			s.emit(evType, expenseData(e, true, ""), "%s stocks grain in %s", payer.Faction, s.Map.Province(e.Province).Name)
		}
	}

	for _, p := range s.Players {
		if p.Treasury < 0 {
			p.Treasury = 0
		}
	}
}

// ValidateExpense reports whether an expense is well formed against the
// current state. Funds are not checked since they depend on the snapshot
// taken at resolution.
func ValidateExpense(e Expense, s *TurnState) error {
	if expenseEvent(e.Kind) == "" {
		return fmt.Errorf("unknown expense kind %q", e.Kind)
	}
	if p := s.Players[e.Player]; p == nil || !p.IsAlive {
		return fmt.Errorf("unknown payer %s", e.Player)
	}
	if reason := checkExpense(s, e); reason != "" {
		return fmt.Errorf("%s: %s", e.Kind, reason)
	}
	return nil
}

// checkExpense returns a failure reason, or "" when the expense is well formed.
func checkExpense(s *TurnState, e Expense) string {
	switch e.Kind {
	case ExpenseTransfer:
		if e.Amount <= 0 {
			return "amount must be positive"
		}
		if t := s.Players[e.TargetPlayer]; t == nil || !t.IsAlive || e.TargetPlayer == e.Player {
			return "invalid recipient"
		}
	case ExpenseAssassination:
		if t := s.Players[e.TargetPlayer]; t == nil || !t.IsAlive || e.TargetPlayer == e.Player {
			return "invalid target"
		}
		if !s.Players[e.Player].AssassinTokens[e.TargetPlayer] {
			return "no assassin token for target"
		}
		if len(e.HitNumbers) == 0 || len(e.HitNumbers) > maxHitNumbers {
			return fmt.Sprintf("choose between 1 and %d numbers", maxHitNumbers)
		}
		seen := make(map[int]bool)
		for _, n := range e.HitNumbers {
			if n < 1 || n > 6 || seen[n] {
				return "hit numbers must be distinct values from 1 to 6"
			}
			seen[n] = true
		}
	case ExpenseBribe:
		u := s.Units[e.TargetUnit]
		if u == nil {
			return "target unit does not exist"
		}
		if u.Owner == e.Player {
			return "unit already owned"
		}
	case ExpenseFamineRelief:
		if p := s.Map.Province(e.Province); p == nil || p.Terrain == Sea {
			return "relief needs a land province"
		}
		if slices.Contains(s.Game.ReliefProvinces, e.Province) {
			return "grain already stored in " + e.Province
		}
	}
	return ""
}

func attemptAssassination(s *TurnState, e Expense, payer *Player) {
	delete(payer.AssassinTokens, e.TargetPlayer)
	roll := s.dice.D6()
	hit := false
	for _, n := range e.HitNumbers {
		if n == roll {
			hit = true
		}
	}
	data := expenseData(e, hit, "")
	data["roll"] = roll
	target := s.Players[e.TargetPlayer]
	if !hit {
		data["reason"] = "missed"
		s.emit(EventAssassination, data, "assassination of %s's leader fails (rolled %d)", target.Faction, roll)
		return
	}
	for _, u := range s.UnitsOf(e.TargetPlayer) {
		s.forceHold(u.ID, "paralysed")
	}
	s.emit(EventAssassination, data, "%s's leader is assassinated, their forces hold", target.Faction)
}

func expenseEvent(k ExpenseKind) EventType {
	switch k {
	case ExpenseTransfer:
		return EventTransfer
	case ExpenseAssassination:
		return EventAssassination
	case ExpenseBribe:
		return EventBribe
	case ExpenseFamineRelief:
		return EventFamineRelief
	}
	return ""
}

func expenseData(e Expense, success bool, reason string) map[string]any {
	d := map[string]any{
		"expenseId": e.ID,
		"player":    string(e.Player),
		"success":   success,
	}
	if e.TargetPlayer != "" {
		d["targetPlayer"] = string(e.TargetPlayer)
	}
	if e.TargetUnit != "" {
		d["targetUnit"] = string(e.TargetUnit)
	}
	if e.Province != "" {
		d["province"] = e.Province
	}
	if reason != "" {
		d["reason"] = reason
	}
	return d
}
