package machiavelli

// applyInactivity counts a strike against every living player who did not
// submit orders, replaces their units' orders with holds, and flips them to
// inactive once the strikes reach InactivityThreshold.
func applyInactivity(s *TurnState) {
	for _, pid := range s.alivePlayers() {
		p := s.Players[pid]
		if p.HasSubmittedOrders {
			if p.Status == StatusInactive {
				p.Status = StatusActive
			}
			p.InactivityCounter = 0
			continue
		}

		p.InactivityCounter++
		s.Warnings = append(s.Warnings, InactivityWarning{Player: pid, UserID: p.UserID, Strikes: p.InactivityCounter})
		s.emit(EventInactivityStrike, map[string]any{
			"player":  string(pid),
			"strikes": p.InactivityCounter,
		}, "%s missed orders (%d consecutive)", p.Faction, p.InactivityCounter)

		for _, u := range s.UnitsOf(pid) {
			o := HoldOrder(*u)
			s.Orders[u.ID] = &o
		}

		if p.InactivityCounter >= InactivityThreshold && p.Status == StatusActive {
			p.Status = StatusInactive
			s.emit(EventPlayerInactive, map[string]any{"player": string(pid)},
				"%s is now inactive", p.Faction)
		}
	}
}

// tallyVotes resolves the ballots cast against every inactive player. Only
// active voters count, each once; their last ballot wins. Plurality decides
// and ties fall to ai_mode, then replacement, then elimination.
func tallyVotes(s *TurnState) {
	for _, target := range s.PlayerIDs() {
		tp := s.Players[target]
		if tp.Status != StatusInactive {
			continue
		}

		ballots := make(map[PlayerID]VoteChoice)
		for _, v := range s.Votes {
			if v.Target != target {
				continue
			}
			s.ProcessedVotes = append(s.ProcessedVotes, v.ID)
			voter := s.Players[v.Voter]
			if voter == nil || v.Voter == target || !voter.IsAlive || voter.Status != StatusActive || !v.Choice.Valid() {
				continue
			}
			ballots[v.Voter] = v.Choice
		}

		counts := map[VoteChoice]int{}
		for _, c := range ballots {
			counts[c]++
		}
		result := VoteAIMode
		best := counts[VoteAIMode]
		for _, c := range []VoteChoice{VoteReplacement, VoteElimination} {
			if counts[c] > best {
				result, best = c, counts[c]
			}
		}

		s.emit(EventVoteResult, map[string]any{
			"player":      string(target),
			"result":      string(result),
			"aiMode":      counts[VoteAIMode],
			"replacement": counts[VoteReplacement],
			"elimination": counts[VoteElimination],
		}, "vote on %s: %s", tp.Faction, result)

		switch result {
		case VoteReplacement:
			tp.Status = StatusAwaitingReplacement
			s.emit(EventPlayerReplacement, map[string]any{"player": string(target)},
				"%s is awaiting a replacement player", tp.Faction)
		case VoteElimination:
			eliminatePlayer(s, target, "vote")
		}
	}
}

// eliminateConquered removes players left with no units and no cities.
func eliminateConquered(s *TurnState) {
	for _, pid := range s.alivePlayers() {
		if len(s.UnitsOf(pid)) == 0 && s.CityCount(pid) == 0 {
			eliminatePlayer(s, pid, "conquered")
		}
	}
}

// eliminatePlayer destroys the player's units, marks them eliminated and
// clears assassin tokens in both directions.
func eliminatePlayer(s *TurnState, pid PlayerID, reason string) {
	p := s.Players[pid]
	if p == nil || p.Status == StatusEliminated {
		return
	}
	removed := 0
	for _, u := range s.UnitsOf(pid) {
		s.removeUnit(u.ID)
		removed++
	}
	p.IsAlive = false
	p.Status = StatusEliminated
	p.AssassinTokens = nil
	p.Cities = nil
	for _, other := range s.Players {
		delete(other.AssassinTokens, pid)
	}
	for city, st := range s.Game.SiegeStatus {
		if st.Besieger == pid {
			delete(s.Game.SiegeStatus, city)
		}
	}
	s.emit(EventPlayerEliminated, map[string]any{
		"player":       string(pid),
		"reason":       reason,
		"unitsRemoved": removed,
	}, "%s has been eliminated (%s)", p.Faction, reason)
}
