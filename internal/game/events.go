package game

import "encoding/json"

// EventType identifies a game event.
type EventType string

const (
	EventGameStarted      EventType = "game_started"
	EventHandsDealt       EventType = "hands_dealt"
	EventCardPlayed       EventType = "card_played"
	EventTalonTaken       EventType = "talon_taken"
	EventTalonAwarded     EventType = "talon_awarded"
	EventRoundEnd         EventType = "round_end"
	EventScoresUpdated    EventType = "scores_updated"
	EventMatchEnd         EventType = "match_end"
	EventTurnTimerStarted EventType = "turn_timer_started"
)

// Event is a single entry in a room's append-only log. Seq is assigned by
// the room actor when the event is appended; the engine emits events with
// Seq zero.
type Event struct {
	Seq     int             `json:"seq"`
	Type    EventType       `json:"type"`
	Actor   string          `json:"actor,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a marshaled payload.
func NewEvent(eventType EventType, actor string, payload interface{}) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = bytes
	}
	return Event{Type: eventType, Actor: actor, Payload: raw}, nil
}

// GameStartedPayload announces a new game.
type GameStartedPayload struct {
	GameID string `json:"gameId"`
}

// HandsDealtPayload carries a full dealing round. The log stores the
// complete record; client-facing copies are redacted per viewer.
type HandsDealtPayload struct {
	HandNumber int                 `json:"handNumber"`
	Dealt      map[string][]string `json:"dealt"`
}

// CardPlayedPayload records a single play.
type CardPlayedPayload struct {
	PlayerID string `json:"playerId"`
	CardID   string `json:"cardId"`
}

// ZingInfo describes a zing scored on a capture.
type ZingInfo struct {
	Points int  `json:"points"` // 10 or 20
	Double bool `json:"double"`
}

// TalonTakenPayload records a capture of the talon.
type TalonTakenPayload struct {
	PlayerID string    `json:"playerId"`
	Taken    []string  `json:"taken"`
	Zing     *ZingInfo `json:"zing"`
}

// TalonAwardedPayload records the leftover talon going to the last
// capturer at round end.
type TalonAwardedPayload struct {
	PlayerID string   `json:"playerId"`
	Taken    []string `json:"taken"`
}

// TeamRoundSummary is one team's share of a round_end payload.
type TeamRoundSummary struct {
	ScoringCards []string `json:"scoringCards"`
	Zings        int      `json:"zings"`
	TotalTaken   int      `json:"totalTaken"`
	TotalPoints  int      `json:"totalPoints"`
	Players      []string `json:"players"`
}

// RoundBonus is the cards-majority bonus awarded at round end.
type RoundBonus struct {
	Reason        string `json:"reason"` // most_cards | tie_two_clubs
	AwardedToTeam int    `json:"awardedToTeam"`
}

// RoundEndPayload summarizes a finished round.
type RoundEndPayload struct {
	Scores TeamPoints                  `json:"scores"`
	Teams  map[string]TeamRoundSummary `json:"teams"`
	Bonus  *RoundBonus                 `json:"bonus"`
}

// ScoresUpdatedPayload carries the cumulative match scores.
type ScoresUpdatedPayload struct {
	Team0 int `json:"team0"`
	Team1 int `json:"team1"`
}

// MatchEndPayload announces the match winner.
type MatchEndPayload struct {
	WinnerTeam  int        `json:"winnerTeam"`
	FinalScores TeamPoints `json:"finalScores"`
}

// TurnTimerStartedPayload announces a running turn countdown.
type TurnTimerStartedPayload struct {
	PlayerID  string `json:"playerId"`
	Duration  int64  `json:"duration"` // milliseconds
	ExpiresAt int64  `json:"expiresAt"`
}
