package machiavelli

import "time"

// HistorySummary counts the notable events of a turn.
type HistorySummary struct {
	TotalEvents     int `json:"totalEvents"`
	Conquests       int `json:"conquests"`
	Retreats        int `json:"retreats"`
	Eliminations    int `json:"eliminations"`
	SiegesCompleted int `json:"siegesCompleted"`
	Standoffs       int `json:"standoffs"`
	Movements       int `json:"movements"`
	Battles         int `json:"battles"`
	Conversions     int `json:"conversions"`
}

// HistoryEntry is the immutable record of one resolved turn.
type HistoryEntry struct {
	GameID      string         `json:"gameId"`
	TurnNumber  int            `json:"turnNumber"`
	Season      Season         `json:"season"`
	Year        int            `json:"year"`
	Timestamp   time.Time      `json:"timestamp"`
	Events      []TurnEvent    `json:"events"`
	Summary     HistorySummary `json:"summary"`
	MajorEvents []TurnEvent    `json:"majorEvents"`
}

// BuildHistory summarizes a turn's events.
func BuildHistory(gameID string, turn int, season Season, year int, at time.Time, events []TurnEvent) HistoryEntry {
	h := HistoryEntry{
		GameID:      gameID,
		TurnNumber:  turn,
		Season:      season,
		Year:        year,
		Timestamp:   at,
		Events:      append([]TurnEvent{}, events...),
		MajorEvents: []TurnEvent{},
	}
	h.Summary.TotalEvents = len(events)
	for _, e := range events {
		switch e.Type {
		case EventCityCaptured:
			h.Summary.Conquests++
			if siege, _ := e.Data["siege"].(bool); siege {
				h.Summary.SiegesCompleted++
			}
		case EventRetreat:
			h.Summary.Retreats++
		case EventPlayerEliminated:
			h.Summary.Eliminations++
		case EventStandoff:
			h.Summary.Standoffs++
		case EventMoveSuccess:
			h.Summary.Movements++
		case EventBattle:
			h.Summary.Battles++
		case EventConversion:
			h.Summary.Conversions++
		}
		if e.major() {
			h.MajorEvents = append(h.MajorEvents, e)
		}
	}
	return h
}
