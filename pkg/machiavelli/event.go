package machiavelli

import "fmt"

// EventType tags a TurnEvent.
type EventType string

const (
	EventInvalidOrder      EventType = "invalid_order"
	EventMissingReference  EventType = "missing_reference"
	EventInactivityStrike  EventType = "inactivity_strike"
	EventPlayerInactive    EventType = "player_inactive"
	EventFamine            EventType = "famine"
	EventFamineCleared     EventType = "famine_cleared"
	EventPlague            EventType = "plague"
	EventIncome            EventType = "income"
	EventMaintenance       EventType = "maintenance"
	EventUnitDisbanded     EventType = "unit_disbanded"
	EventTransfer          EventType = "transfer"
	EventAssassination     EventType = "assassination"
	EventBribe             EventType = "bribe"
	EventFamineRelief      EventType = "famine_relief"
	EventConvoyFailed      EventType = "convoy_failed"
	EventSupportCut        EventType = "support_cut"
	EventMoveSuccess       EventType = "move_success"
	EventBattle            EventType = "battle"
	EventStandoff          EventType = "standoff"
	EventDefenderHolds     EventType = "defender_holds"
	EventRetreat           EventType = "retreat"
	EventNoRetreat         EventType = "no_retreat"
	EventSiegeStarted      EventType = "siege_started"
	EventSiegeContinued    EventType = "siege_continued"
	EventSiegeLifted       EventType = "siege_lifted"
	EventCityCaptured      EventType = "city_captured"
	EventConversion        EventType = "conversion"
	EventVoteResult        EventType = "vote_result"
	EventPlayerEliminated  EventType = "player_eliminated"
	EventPlayerReplacement EventType = "awaiting_replacement"
	EventVictory           EventType = "victory"
)

// TurnEvent is one narrated step of a turn's resolution.
type TurnEvent struct {
	Type    EventType      `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// major reports whether the event belongs in a history entry's majorEvents.
func (e TurnEvent) major() bool {
	switch e.Type {
	case EventCityCaptured, EventPlayerEliminated, EventBattle:
		return true
	}
	return false
}

// emit appends an event to the turn log.
func (s *TurnState) emit(t EventType, data map[string]any, format string, args ...any) {
	s.Events = append(s.Events, TurnEvent{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
		Data:    data,
	})
}
