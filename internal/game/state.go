package game

import "fmt"

// TeamPoints holds one integer per team.
type TeamPoints struct {
	Team0 int `json:"team0"`
	Team1 int `json:"team1"`
}

// Get returns the value for a team.
func (t TeamPoints) Get(team int) int {
	if team == 0 {
		return t.Team0
	}
	return t.Team1
}

// Add returns the points with delta added to the given team.
func (t TeamPoints) Add(team, delta int) TeamPoints {
	if team == 0 {
		t.Team0 += delta
	} else {
		t.Team1 += delta
	}
	return t
}

// PlayerState is one seat at the table.
type PlayerState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Seat  int    `json:"seat"`
	Team  int    `json:"team"`
	Hand  []Card `json:"hand"`
	Taken []Card `json:"taken"`
}

// PendingZing records the card that last left the talon with a single
// card, for zing attribution on the next capture.
type PendingZing struct {
	CardID   string `json:"cardId"`
	PlayerID string `json:"playerId"`
}

// State is the complete game state for one match. The engine treats it as
// an immutable value: every transition clones first.
type State struct {
	Seed        string
	RoundNumber int
	HandNumber  int

	Players    []PlayerState
	Deck       []Card
	Talon      []Card
	DealerSeat int
	TurnSeat   int

	Scores     TeamPoints
	RoundZings TeamPoints
	Pending    *PendingZing

	// LastCapturerSeat is -1 until the first capture of the round.
	LastCapturerSeat int

	Target    int
	RoundOver bool
}

// CurrentTurnPlayerID returns the id of the player whose turn it is.
func (s State) CurrentTurnPlayerID() string {
	return s.Players[s.TurnSeat].ID
}

// PlayerByID returns the seat state for a player id.
func (s State) PlayerByID(id string) (*PlayerState, error) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := s
	out.Players = make([]PlayerState, len(s.Players))
	for i, p := range s.Players {
		out.Players[i] = p
		out.Players[i].Hand = append([]Card(nil), p.Hand...)
		out.Players[i].Taken = append([]Card(nil), p.Taken...)
	}
	out.Deck = append([]Card(nil), s.Deck...)
	out.Talon = append([]Card(nil), s.Talon...)
	if s.Pending != nil {
		pending := *s.Pending
		out.Pending = &pending
	}
	return out
}

// CardCount returns deck + hands + talon + taken; always 52 for a live
// round.
func (s State) CardCount() int {
	n := len(s.Deck) + len(s.Talon)
	for _, p := range s.Players {
		n += len(p.Hand) + len(p.Taken)
	}
	return n
}

func (s State) handsEmpty() bool {
	for _, p := range s.Players {
		if len(p.Hand) > 0 {
			return false
		}
	}
	return true
}

// Engine errors surfaced to the room actor.
type EngineError string

func (e EngineError) Error() string { return string(e) }

const (
	ErrNotYourTurn   EngineError = "not your turn"
	ErrIllegalCard   EngineError = "card is not in hand"
	ErrBadCardID     EngineError = "malformed card id"
	ErrUnknownPlayer EngineError = "player not in game"
	ErrRoundOver     EngineError = "round already over"
)
