package room

import (
	"encoding/json"

	"zing-server/internal/game"
	"zing-server/internal/ws"
)

// PlayerSnapshot is one seat in a game_state snapshot. Hand is present
// only in the owner's copy; everyone else sees the count.
type PlayerSnapshot struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Seat      int      `json:"seat"`
	Team      int      `json:"team"`
	Hand      []string `json:"hand,omitempty"`
	HandCount int      `json:"handCount"`
	Taken     int      `json:"takenCount"`
}

// GameStatePayload is the full snapshot a subscriber needs to render the
// table. Replaying events with seq > LastSeq on top of it reconstructs
// the live state.
type GameStatePayload struct {
	GameID        string           `json:"gameId"`
	RoundNumber   int              `json:"roundNumber"`
	HandNumber    int              `json:"handNumber"`
	DealerSeat    int              `json:"dealerSeat"`
	CurrentTurn   string           `json:"currentTurnPlayerId"`
	Talon         []string         `json:"talon"`
	DeckCount     int              `json:"deckCount"`
	Players       []PlayerSnapshot `json:"players"`
	Scores        game.TeamPoints  `json:"scores"`
	RoundZings    game.TeamPoints  `json:"roundZings"`
	Target        int              `json:"matchTarget"`
	Paused        string           `json:"paused,omitempty"` // talon | recap
	TurnExpiresAt int64            `json:"turnExpiresAt,omitempty"`
	LastSeq       int              `json:"lastSeq"`
}

// snapshotFor renders the game state as seen by one viewer. Must run on
// the actor goroutine.
func (r *Room) snapshotFor(viewerID string) *GameStatePayload {
	if r.game == nil {
		return nil
	}
	s := r.game

	players := make([]PlayerSnapshot, len(s.Players))
	for i, p := range s.Players {
		snap := PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Seat:      p.Seat,
			Team:      p.Team,
			HandCount: len(p.Hand),
			Taken:     len(p.Taken),
		}
		if p.ID == viewerID {
			snap.Hand = cardIDs(p.Hand)
		}
		players[i] = snap
	}

	payload := &GameStatePayload{
		GameID:      r.gameID,
		RoundNumber: s.RoundNumber,
		HandNumber:  s.HandNumber,
		DealerSeat:  s.DealerSeat,
		CurrentTurn: s.CurrentTurnPlayerID(),
		Talon:       cardIDs(s.Talon),
		DeckCount:   len(s.Deck),
		Players:     players,
		Scores:      s.Scores,
		RoundZings:  s.RoundZings,
		Target:      s.Target,
		LastSeq:     len(r.events),
	}
	switch r.pause {
	case pauseTalon:
		payload.Paused = "talon"
	case pauseRecap:
		payload.Paused = "recap"
	}
	if !r.turnDeadline.IsZero() {
		payload.TurnExpiresAt = r.turnDeadline.UnixMilli()
	}
	return payload
}

// membershipPayload renders the room_update snapshot. Must run on the
// actor goroutine.
func (r *Room) membershipPayload() ws.RoomUpdatePayload {
	members := make([]ws.MemberInfo, len(r.members))
	for i, m := range r.members {
		members[i] = ws.MemberInfo{
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Role:     m.Role,
			JoinedAt: m.JoinedAt.UnixMilli(),
			Online:   r.subscribers[m.PlayerID] != nil,
		}
	}

	payload := ws.RoomUpdatePayload{
		RoomID:       r.ID,
		Code:         r.Code,
		InviteToken:  r.InviteToken,
		Visibility:   string(r.Visibility),
		HostID:       r.hostID,
		TimerEnabled: r.timerEnabled,
		Phase:        string(r.phase),
		Members:      members,
	}
	if r.teams != nil {
		payload.Team0 = append([]string(nil), r.teams.Team0...)
		payload.Team1 = append([]string(nil), r.teams.Team1...)
	}
	return payload
}

// redactEventFor strips hidden information from an event before it goes
// to a specific viewer. The log keeps the full record; hands_dealt shows
// a viewer only their own cards.
func redactEventFor(ev game.Event, viewerID string) game.Event {
	if ev.Type != game.EventHandsDealt {
		return ev
	}

	var payload game.HandsDealtPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return ev
	}

	visible := make(map[string][]string, 1)
	if own, ok := payload.Dealt[viewerID]; ok {
		visible[viewerID] = own
	}
	redacted, err := json.Marshal(game.HandsDealtPayload{
		HandNumber: payload.HandNumber,
		Dealt:      visible,
	})
	if err != nil {
		return ev
	}

	out := ev
	out.Payload = redacted
	return out
}

func cardIDs(cards []game.Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID()
	}
	return ids
}
