package machiavelli

import "testing"

func TestMissedOrdersIncrementCounterAndForceHold(t *testing.T) {
	s := withOrders(stateWith(army("a1", "p1", "mil")), order("a1", Move{Dest: "ver"}))
	s.Players["p1"].HasSubmittedOrders = false
	applyInactivity(s)

	p := s.Players["p1"]
	if p.InactivityCounter != 1 || p.Status != StatusActive {
		t.Errorf("expected 1 strike and still active, got %d %s", p.InactivityCounter, p.Status)
	}
	if s.Orders["a1"].Action() != ActionHold {
		t.Error("missed player's units should hold")
	}
	if len(s.Warnings) != 1 || s.Warnings[0].Strikes != 1 {
		t.Errorf("expected one warning with 1 strike, got %+v", s.Warnings)
	}
}

func TestThirdStrikeMakesInactive(t *testing.T) {
	s := stateWith()
	s.Players["p1"].HasSubmittedOrders = false
	s.Players["p1"].InactivityCounter = 2
	applyInactivity(s)

	if s.Players["p1"].Status != StatusInactive {
		t.Errorf("expected inactive, got %s", s.Players["p1"].Status)
	}
	if n := len(eventsOf(s, EventPlayerInactive)); n != 1 {
		t.Errorf("expected player_inactive event, got %d", n)
	}
}

func TestSubmittingResetsInactivity(t *testing.T) {
	s := stateWith()
	p := s.Players["p1"]
	p.Status = StatusInactive
	p.InactivityCounter = 4
	applyInactivity(s)

	if p.Status != StatusActive || p.InactivityCounter != 0 {
		t.Errorf("expected reactivated player, got %s/%d", p.Status, p.InactivityCounter)
	}
}

func TestVoteEliminationRemovesPlayer(t *testing.T) {
	r := newResolver(&scriptedDice{})
	game := testGame(Summer,
		army("a1", "p1", "mil"),
		army("a2", "p2", "ver"),
		army("a3", "p3", "man"),
		army("a5", "p5", "pad"),
		army("x1", "p4", "sav"),
		garrison("x2", "p4", "tur"),
	)
	ps := players("p1", "p2", "p3", "p4", "p5")
	ps[3].HasSubmittedOrders = false
	ps[3].InactivityCounter = 2
	ps[0].AssassinTokens["p4"] = true
	ps[1].AssassinTokens["p4"] = true
	ps[3].AssassinTokens["p1"] = true
	votes := []Vote{
		{ID: "v1", Voter: "p1", Target: "p4", Choice: VoteElimination},
		{ID: "v2", Voter: "p2", Target: "p4", Choice: VoteElimination},
		{ID: "v3", Voter: "p3", Target: "p4", Choice: VoteElimination},
		{ID: "v4", Voter: "p5", Target: "p4", Choice: VoteAIMode},
	}

	res, err := r.ResolveTurn(TurnInput{Game: game, Players: ps, Votes: votes})
	if err != nil {
		t.Fatal(err)
	}

	for _, u := range res.Game.Units {
		if u.Owner == "p4" {
			t.Errorf("unit %s of eliminated player survived", u.ID)
		}
	}
	var p4 Player
	for _, p := range res.Players {
		if p.ID == "p4" {
			p4 = p
		}
		if _, ok := p.AssassinTokens["p4"]; ok {
			t.Errorf("%s still holds a token for p4", p.ID)
		}
	}
	if p4.IsAlive || p4.Status != StatusEliminated || len(p4.AssassinTokens) != 0 {
		t.Errorf("expected p4 eliminated with no tokens, got %+v", p4)
	}
	if n := len(filterEvents(res.Events, EventPlayerEliminated)); n != 1 {
		t.Errorf("expected 1 player_eliminated event, got %d", n)
	}
	if len(res.ProcessedVotes) != 4 {
		t.Errorf("expected 4 processed votes, got %v", res.ProcessedVotes)
	}
}

func TestVoteTieFallsToAIMode(t *testing.T) {
	s := stateWith()
	s.Players["p3"].Status = StatusInactive
	s.Votes = []Vote{
		{ID: "v1", Voter: "p1", Target: "p3", Choice: VoteElimination},
		{ID: "v2", Voter: "p2", Target: "p3", Choice: VoteAIMode},
	}
	tallyVotes(s)

	if s.Players["p3"].Status != StatusInactive || !s.Players["p3"].IsAlive {
		t.Errorf("tie should keep the player in ai mode, got %s", s.Players["p3"].Status)
	}
}

func TestNoVotesDefaultsToAIMode(t *testing.T) {
	s := stateWith()
	s.Players["p3"].Status = StatusInactive
	tallyVotes(s)

	evs := eventsOf(s, EventVoteResult)
	if len(evs) != 1 || evs[0].Data["result"] != string(VoteAIMode) {
		t.Errorf("expected ai_mode result, got %+v", evs)
	}
}

func TestReplacementVote(t *testing.T) {
	s := stateWith()
	s.Players["p3"].Status = StatusInactive
	s.Votes = []Vote{
		{ID: "v1", Voter: "p1", Target: "p3", Choice: VoteReplacement},
		{ID: "v2", Voter: "p1", Target: "p3", Choice: VoteReplacement},
		{ID: "v3", Voter: "p2", Target: "p3", Choice: VoteElimination},
	}
	tallyVotes(s)

	// p1's duplicate ballot counts once, leaving a 1-1 tie that replacement wins
	// over elimination.
	if s.Players["p3"].Status != StatusAwaitingReplacement {
		t.Errorf("expected awaiting_replacement, got %s", s.Players["p3"].Status)
	}
}

func TestInactiveVotersAreIgnored(t *testing.T) {
	s := stateWith()
	s.Players["p3"].Status = StatusInactive
	s.Players["p2"].Status = StatusInactive
	s.Votes = []Vote{{ID: "v1", Voter: "p2", Target: "p3", Choice: VoteElimination}}
	tallyVotes(s)

	if s.Players["p3"].Status == StatusEliminated {
		t.Error("an inactive voter must not decide the vote")
	}
}

func TestConqueredPlayerIsEliminated(t *testing.T) {
	s := stateWith(army("a1", "p1", "mil"))
	eliminateConquered(s)

	if s.Players["p2"].IsAlive || s.Players["p3"].IsAlive {
		t.Error("players without units or cities should be eliminated")
	}
	if !s.Players["p1"].IsAlive {
		t.Error("p1 still has an army")
	}
}
