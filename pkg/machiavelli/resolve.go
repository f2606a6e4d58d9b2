package machiavelli

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvariant is returned when movement leaves a unit somewhere it cannot be.
var ErrInvariant = errors.New("position invariant violated")

type moveState int

const (
	moveUnresolved moveState = iota
	moveSucceeded
	moveFailed
)

// pendingMove tracks one valid move order through adjudication.
type pendingMove struct {
	unit     *Unit
	order    *Order
	from     string
	dest     string
	force    int
	state    moveState
	convoyed bool
	excluded bool // lost or bounced a head-to-head; no effect on its destination
	leaving  bool // assumed to vacate while breaking a circular movement
}

// movement adjudicates all moves of one turn against a fixed starting position.
type movement struct {
	s           *TurnState
	moves       []*pendingMove
	byUnit      map[UnitID]*pendingMove
	holdSupport map[string]int
	occupants   map[string][]*Unit
	garrisons   map[UnitID]string
}

type outcomeKind int

const (
	outcomeWaiting outcomeKind = iota
	outcomeTie
	outcomeMove
	outcomeDislodge
	outcomeBounce
	outcomeHeld
)

type outcome struct {
	kind      outcomeKind
	dest      string
	winner    *pendingMove
	losers    []*pendingMove
	tied      []*pendingMove
	defenders []*Unit
	attack    int
	defense   int
}

// resolveMovement runs convoy routing, support cutting, force calculation,
// battles and non-combat moves, then relocates the winners.
func resolveMovement(s *TurnState) error {
	r := newMovement(s)
	r.routeConvoys()
	r.cutSupports()
	r.computeForces()
	r.resolveHeadToHead()
	r.resolveContests()
	r.apply()
	return r.checkPositions()
}

func newMovement(s *TurnState) *movement {
	r := &movement{
		s:           s,
		byUnit:      make(map[UnitID]*pendingMove),
		holdSupport: make(map[string]int),
		occupants:   make(map[string][]*Unit),
		garrisons:   make(map[UnitID]string),
	}
	for _, id := range s.UnitIDs() {
		u := s.Units[id]
		r.occupants[u.Province] = append(r.occupants[u.Province], u)
		if u.Type == Garrison {
			r.garrisons[id] = u.Province
		}
		o := s.OrderFor(id)
		mv, ok := o.Command.(Move)
		if !ok || !o.Valid {
			continue
		}
		pm := &pendingMove{unit: u, order: o, from: u.Province, dest: mv.Dest, force: 1}
		r.moves = append(r.moves, pm)
		r.byUnit[id] = pm
	}
	return r
}

// convoySeas returns the sea provinces adjacent to both a and b.
func convoySeas(m *Map, a, b string) []string {
	var out []string
	for _, n := range m.Adjacencies[a] {
		if p := m.Province(n); p != nil && p.Terrain == Sea && m.Adjacent(n, b) {
			out = append(out, n)
		}
	}
	return out
}

// routeConvoys checks every army move that is not land-adjacent. A single
// convoying fleet must touch both ends; there is no chaining.
func (r *movement) routeConvoys() {
	kept := r.moves[:0]
	for _, pm := range r.moves {
		if pm.unit.Type != Army || r.s.Map.Adjacent(pm.from, pm.dest) {
			kept = append(kept, pm)
			continue
		}
		if fleet := r.findConvoy(pm); fleet != nil {
			pm.convoyed = true
			kept = append(kept, pm)
			continue
		}
		pm.order.Valid = false
		pm.order.Reason = "no convoy route"
		delete(r.byUnit, pm.unit.ID)
		r.s.emit(EventConvoyFailed, map[string]any{
			"unitId": string(pm.unit.ID),
			"from":   pm.from,
			"to":     pm.dest,
		}, "no fleet convoys %s from %s to %s", pm.unit.ID, pm.from, pm.dest)
	}
	r.moves = kept
}

func (r *movement) findConvoy(pm *pendingMove) *Unit {
	for _, id := range r.s.UnitIDs() {
		f := r.s.Units[id]
		if f.Type != Fleet {
			continue
		}
		o := r.s.OrderFor(id)
		c, ok := o.Command.(Convoy)
		if !ok || !o.Valid || c.Dest != pm.dest || (c.Army != "" && c.Army != pm.unit.ID) {
			continue
		}
		p := r.s.Map.Province(f.Province)
		if p == nil || p.Terrain != Sea {
			continue
		}
		if r.s.Map.Adjacent(f.Province, pm.from) && r.s.Map.Adjacent(f.Province, pm.dest) {
			return f
		}
	}
	return nil
}

// cutSupports cancels every support whose province is the destination of a
// valid move, unless that move belongs to the supported unit.
func (r *movement) cutSupports() {
	for _, id := range r.s.UnitIDs() {
		o := r.s.OrderFor(id)
		c, ok := o.Command.(Support)
		if !ok || !o.Valid {
			continue
		}
		at := r.s.Units[id].Province
		for _, pm := range r.moves {
			if pm.dest != at || pm.unit.ID == c.Unit || pm.unit.ID == id {
				continue
			}
			o.Valid = false
			o.Reason = "support cut"
			r.s.emit(EventSupportCut, map[string]any{
				"unitId":   string(id),
				"province": at,
				"attacker": string(pm.unit.ID),
			}, "support by %s in %s cut by %s", id, at, pm.unit.ID)
			break
		}
	}
}

// computeForces adds each standing support to the move it backs, or to the
// defense of the province it names.
func (r *movement) computeForces() {
	for _, id := range r.s.UnitIDs() {
		o := r.s.OrderFor(id)
		c, ok := o.Command.(Support)
		if !ok || !o.Valid {
			continue
		}
		supported := r.s.Units[c.Unit]
		if supported == nil {
			continue
		}
		if pm := r.byUnit[c.Unit]; pm != nil && pm.dest == c.Target {
			pm.force++
			continue
		}
		if supported.Province == c.Target {
			r.holdSupport[c.Target]++
		}
	}
}

// resolveHeadToHead settles direct swaps. The stronger side keeps its move
// and must still win its destination; equal force or a shared owner bounces
// both.
func (r *movement) resolveHeadToHead() {
	for _, a := range r.moves {
		if a.convoyed || a.excluded {
			continue
		}
		for _, b := range r.moves {
			if b.unit.ID <= a.unit.ID || b.convoyed || b.excluded {
				continue
			}
			if a.dest != b.from || b.dest != a.from {
				continue
			}
			switch {
			case a.unit.Owner == b.unit.Owner || a.force == b.force:
				a.state, b.state = moveFailed, moveFailed
				a.excluded, b.excluded = true, true
				r.s.emit(EventStandoff, map[string]any{
					"province":    a.dest,
					"units":       []string{string(a.unit.ID), string(b.unit.ID)},
					"attackForce": a.force,
					"headToHead":  true,
				}, "%s and %s bounce trading places", a.unit.ID, b.unit.ID)
			case a.force > b.force:
				b.state, b.excluded = moveFailed, true
			default:
				a.state, a.excluded = moveFailed, true
			}
		}
	}
}

// contestants returns the moves competing for dest.
func (r *movement) contestants(dest string) []*pendingMove {
	var out []*pendingMove
	for _, pm := range r.moves {
		if pm.dest == dest && !pm.excluded {
			out = append(out, pm)
		}
	}
	return out
}

// evaluate decides dest without side effects.
func (r *movement) evaluate(dest string) outcome {
	ms := r.contestants(dest)
	out := outcome{dest: dest}
	maxForce := 0
	for _, pm := range ms {
		if pm.force > maxForce {
			maxForce = pm.force
		}
	}
	for _, pm := range ms {
		if pm.force == maxForce {
			out.tied = append(out.tied, pm)
		} else {
			out.losers = append(out.losers, pm)
		}
	}
	if len(out.tied) > 1 {
		out.kind = outcomeTie
		out.losers = ms
		return out
	}
	out.winner = out.tied[0]
	out.tied = nil
	out.attack = out.winner.force

	for _, u := range r.occupants[dest] {
		if u.ID == out.winner.unit.ID {
			continue
		}
		if pm := r.byUnit[u.ID]; pm != nil {
			if pm.leaving || pm.state == moveSucceeded {
				continue
			}
			if pm.state == moveUnresolved {
				out.kind = outcomeWaiting
				return out
			}
		}
		if u.Owner != out.winner.unit.Owner {
			out.defenders = append(out.defenders, u)
		}
	}

	if len(out.defenders) == 0 {
		out.kind = outcomeMove
		return out
	}
	out.defense = 1 + r.holdSupport[dest]
	switch {
	case out.attack > out.defense:
		out.kind = outcomeDislodge
	case out.attack == out.defense:
		out.kind = outcomeBounce
	default:
		out.kind = outcomeHeld
	}
	return out
}

func (r *movement) commit(o outcome) {
	for _, pm := range o.losers {
		pm.state = moveFailed
	}
	switch o.kind {
	case outcomeTie:
		ids := make([]string, 0, len(o.tied))
		for _, pm := range o.tied {
			ids = append(ids, string(pm.unit.ID))
		}
		r.s.emit(EventStandoff, map[string]any{
			"province":    o.dest,
			"units":       ids,
			"attackForce": o.tied[0].force,
		}, "standoff in %s between %d units", o.dest, len(ids))

	case outcomeMove:
		o.winner.state = moveSucceeded
		r.s.emit(EventMoveSuccess, map[string]any{
			"unitId": string(o.winner.unit.ID),
			"player": string(o.winner.unit.Owner),
			"from":   o.winner.from,
			"to":     o.dest,
		}, "%s moves from %s to %s", o.winner.unit.ID, o.winner.from, o.dest)

	case outcomeDislodge:
		o.winner.state = moveSucceeded
		defenders := make([]string, 0, len(o.defenders))
		for _, d := range o.defenders {
			defenders = append(defenders, string(d.ID))
			r.s.Dislodged = append(r.s.Dislodged, Dislodged{UnitID: d.ID, From: o.dest, AttackerFrom: o.winner.from})
		}
		r.s.emit(EventBattle, map[string]any{
			"province":     o.dest,
			"attacker":     string(o.winner.unit.ID),
			"defenders":    defenders,
			"attackForce":  o.attack,
			"defenseForce": o.defense,
			"result":       "dislodged",
		}, "%s takes %s (%d vs %d)", o.winner.unit.ID, o.dest, o.attack, o.defense)

	case outcomeBounce:
		o.winner.state = moveFailed
		ids := []string{string(o.winner.unit.ID)}
		for _, d := range o.defenders {
			ids = append(ids, string(d.ID))
		}
		r.s.emit(EventStandoff, map[string]any{
			"province":     o.dest,
			"units":        ids,
			"attackForce":  o.attack,
			"defenseForce": o.defense,
		}, "standoff in %s (%d vs %d)", o.dest, o.attack, o.defense)

	case outcomeHeld:
		o.winner.state = moveFailed
		r.s.emit(EventDefenderHolds, map[string]any{
			"province":     o.dest,
			"attacker":     string(o.winner.unit.ID),
			"attackForce":  o.attack,
			"defenseForce": o.defense,
		}, "%s holds against %s (%d vs %d)", o.dest, o.winner.unit.ID, o.defense, o.attack)
	}
}

// resolveContests decides destinations until every move is resolved. Failures
// only accumulate, so each pass either settles something or the remaining
// moves wait on each other in a ring.
func (r *movement) resolveContests() {
	for {
		dests := r.unresolvedDests()
		if len(dests) == 0 {
			return
		}
		progress := false
		for _, d := range dests {
			o := r.evaluate(d)
			if o.kind == outcomeWaiting {
				// Weaker contestants lose whatever the occupants do.
				for _, pm := range o.losers {
					if pm.state == moveUnresolved {
						pm.state = moveFailed
						progress = true
					}
				}
				continue
			}
			r.commit(o)
			progress = true
		}
		if !progress {
			r.breakRing()
		}
	}
}

func (r *movement) unresolvedDests() []string {
	seen := make(map[string]bool)
	var out []string
	for _, pm := range r.moves {
		if pm.state == moveUnresolved && !pm.excluded && !seen[pm.dest] {
			seen[pm.dest] = true
			out = append(out, pm.dest)
		}
	}
	sort.Strings(out)
	return out
}

// breakRing resolves a circular movement. It follows waiting moves until one
// repeats, assumes every ring member vacates and commits the ring if each
// member still wins. Otherwise the first losing member is committed, which
// breaks the ring for the next pass.
func (r *movement) breakRing() {
	var first *pendingMove
	for _, start := range r.moves {
		if start.state != moveUnresolved || start.excluded {
			continue
		}
		if first == nil {
			first = start
		}
		if r.tryRing(start) {
			return
		}
	}
	if first != nil {
		r.s.log.Warn().Str("unitId", string(first.unit.ID)).Msg("unresolvable movement, move fails")
		first.state = moveFailed
	}
}

func (r *movement) tryRing(start *pendingMove) bool {
	visited := make(map[*pendingMove]int)
	var path []*pendingMove
	for cur := start; cur != nil; cur = r.blocker(cur) {
		if i, ok := visited[cur]; ok {
			path = path[i:]
			break
		}
		visited[cur] = len(path)
		path = append(path, cur)
	}

	for _, pm := range path {
		pm.leaving = true
	}
	outcomes := make([]outcome, 0, len(path))
	for _, pm := range path {
		outcomes = append(outcomes, r.evaluate(pm.dest))
	}
	for _, pm := range path {
		pm.leaving = false
	}

	for _, o := range outcomes {
		if o.kind == outcomeWaiting {
			return false
		}
	}
	for _, o := range outcomes {
		if o.kind != outcomeMove && o.kind != outcomeDislodge {
			r.commit(o)
			return true
		}
	}
	for _, o := range outcomes {
		r.commit(o)
	}
	return true
}

// blocker returns the unresolved move of a unit standing in pm's destination.
func (r *movement) blocker(pm *pendingMove) *pendingMove {
	for _, u := range r.occupants[pm.dest] {
		if next := r.byUnit[u.ID]; next != nil && next.state == moveUnresolved && !next.excluded {
			return next
		}
	}
	return nil
}

// apply relocates every successful mover.
func (r *movement) apply() {
	for _, pm := range r.moves {
		if pm.state == moveSucceeded {
			pm.unit.Province = pm.dest
		}
	}
	sort.Slice(r.s.Dislodged, func(i, j int) bool { return r.s.Dislodged[i].UnitID < r.s.Dislodged[j].UnitID })
}

// checkPositions verifies that every unit stands on a province its type may
// occupy and that no garrison moved.
func (r *movement) checkPositions() error {
	for _, id := range r.s.UnitIDs() {
		u := r.s.Units[id]
		if r.s.Map.Province(u.Province) == nil {
			return fmt.Errorf("%w: unit %s in unknown province %q", ErrInvariant, id, u.Province)
		}
		if !r.s.Map.CanOccupy(u.Type, u.Province) {
			return fmt.Errorf("%w: %s cannot stand in %s", ErrInvariant, u, u.Province)
		}
		if from, ok := r.garrisons[id]; ok && from != u.Province {
			return fmt.Errorf("%w: garrison %s moved from %s to %s", ErrInvariant, id, from, u.Province)
		}
	}
	return nil
}
