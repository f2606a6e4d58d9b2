package machiavelli

import "time"

// TimeLimitTurns is the resolved turn number from which the game ends on
// the city count.
const TimeLimitTurns = 12

// VictoryThreshold returns the cities needed for a standard victory with
// the given number of players.
func VictoryThreshold(players int) int {
	switch players {
	case 5:
		return 8
	case 6:
		return 9
	case 7:
		return 10
	case 8:
		return 11
	default:
		return 9
	}
}

// AdvanceTurn moves the game to the next season, bumps the turn number and
// opens the next phase. The diplomatic phase is used when the game has a
// diplomatic duration.
func AdvanceTurn(g *Game, players map[PlayerID]*Player, now time.Time) {
	next, rollover := g.Season.Next()
	g.Season = next
	if rollover {
		g.Year++
	}
	g.TurnNumber++
	if g.DiplomaticDuration > 0 {
		g.Phase = PhaseDiplomatic
		g.PhaseDeadline = now.Add(g.DiplomaticDuration)
	} else {
		g.Phase = PhaseOrders
		g.PhaseDeadline = now.Add(g.OrdersDuration)
	}
	for _, p := range players {
		p.HasSubmittedOrders = false
	}
}

// OpenOrders ends a diplomatic phase and starts order submission.
func OpenOrders(g *Game, now time.Time) {
	g.Phase = PhaseOrders
	g.PhaseDeadline = now.Add(g.OrdersDuration)
}

// refreshCities stores each player's garrisoned cities on the player.
func refreshCities(s *TurnState) {
	units := s.unitSlice()
	for _, p := range s.Players {
		if p.Status == StatusEliminated {
			p.Cities = nil
			continue
		}
		p.Cities = ControlledCities(s.Map, units, p.ID)
	}
}

// evaluateVictory checks standard victory after an autumn turn and the time
// limit once the resolved turn reaches TimeLimitTurns. A winner finishes the
// game.
func evaluateVictory(s *TurnState, ended Season, resolvedTurn int) {
	alive := s.alivePlayers()
	if len(alive) == 0 {
		return
	}

	if ended == Autumn {
		threshold := VictoryThreshold(len(s.playerOrder))
		for _, pid := range alive {
			if n := s.CityCount(pid); n >= threshold {
				declareVictory(s, VictoryStandard, []PlayerID{pid}, n)
				return
			}
		}
	}

	if resolvedTurn < TimeLimitTurns {
		return
	}

	best := -1
	var leaders []PlayerID
	for _, pid := range alive {
		n := s.CityCount(pid)
		switch {
		case n > best:
			best, leaders = n, []PlayerID{pid}
		case n == best:
			leaders = append(leaders, pid)
		}
	}
	if len(leaders) > 1 {
		bestIncome := -1
		var richest []PlayerID
		for _, pid := range leaders {
			inc := 0
			for _, c := range s.controlledCities(pid) {
				inc += s.Map.Province(c).Income
			}
			switch {
			case inc > bestIncome:
				bestIncome, richest = inc, []PlayerID{pid}
			case inc == bestIncome:
				richest = append(richest, pid)
			}
		}
		leaders = richest
	}
	if len(leaders) > 1 {
		declareVictory(s, VictoryShared, leaders, best)
		return
	}
	declareVictory(s, VictoryTimeLimit, leaders, best)
}

func declareVictory(s *TurnState, vt VictoryType, winners []PlayerID, cities int) {
	s.Game.Winners = winners
	s.Game.VictoryType = vt
	s.Game.Phase = PhaseFinished
	s.Game.PhaseDeadline = time.Time{}

	ids := make([]string, len(winners))
	names := make([]string, len(winners))
	for i, w := range winners {
		ids[i] = string(w)
		names[i] = s.Players[w].Faction
	}
	s.emit(EventVictory, map[string]any{
		"winners":     ids,
		"victoryType": string(vt),
		"cities":      cities,
	}, "%s victory for %v with %d cities", vt, names, cities)
}
