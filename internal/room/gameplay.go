package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zing-server/internal/game"
	"zing-server/internal/logger"
	"zing-server/internal/store"
	"zing-server/internal/ws"
)

// Game modes.
const (
	Mode1v1       = "1v1"
	Mode2v2Random = "2v2_random"
	Mode2v2Party  = "2v2_party"
)

// StartGame begins a game at the host's request.
func (r *Room) StartGame(callerID, mode string) error {
	return r.callErr(func() error {
		if callerID != r.hostID {
			return ErrNotHost
		}
		return r.beginGame(mode, 0)
	})
}

// beginGame validates seating for the mode, builds a fresh engine state,
// and pushes the opening events out. Seat order follows join order; 2v2
// party seats alternate teams so that turn order does too.
func (r *Room) beginGame(mode string, dealerSeat int) error {
	if r.phase == PhasePlaying {
		return ErrAlreadyStarted
	}

	players := r.playersInJoinOrder()
	var seats []game.Seat

	switch mode {
	case Mode1v1, Mode2v2Random:
		// 2v2_random is a two-player game where the seat index doubles
		// as the team tag, so it shares the 1v1 seating.
		if len(players) != 2 {
			return ErrPlayerCount
		}
		seats = []game.Seat{
			{PlayerID: players[0].PlayerID, Name: players[0].Name, Team: 0},
			{PlayerID: players[1].PlayerID, Name: players[1].Name, Team: 1},
		}

	case Mode2v2Party:
		if len(players) != 4 {
			return ErrPlayerCount
		}
		if r.teams == nil {
			return ErrTeamsMissing
		}
		byID := make(map[string]*Member, 4)
		for _, m := range players {
			byID[m.PlayerID] = m
		}
		for _, id := range append(append([]string{}, r.teams.Team0...), r.teams.Team1...) {
			if byID[id] == nil {
				return ErrTeamsMissing
			}
		}
		// Partners sit across from each other.
		order := []struct {
			id   string
			team int
		}{
			{r.teams.Team0[0], 0},
			{r.teams.Team1[0], 1},
			{r.teams.Team0[1], 0},
			{r.teams.Team1[1], 1},
		}
		seats = make([]game.Seat, 4)
		for i, o := range order {
			seats[i] = game.Seat{PlayerID: o.id, Name: byID[o.id].Name, Team: o.team}
		}

	default:
		return &Error{"bad_mode", "unknown game mode: " + mode}
	}

	state, dealEvents := game.NewMatchWithDealer(uuid.NewString(), seats, r.cfg.MatchTargetInit, dealerSeat)
	r.game = &state
	r.gameID = uuid.NewString()
	r.phase = PhasePlaying
	r.mode = mode
	r.pause = pauseNone
	r.timerPending = false
	r.lastExpired = ""
	r.surrenderVotes = make(map[string]bool)
	r.rematchVotes = make(map[string]bool)

	started, _ := game.NewEvent(game.EventGameStarted, "", game.GameStartedPayload{GameID: r.gameID})
	r.appendAndBroadcast([]game.Event{started})
	r.broadcastMembership(game.Event{})

	for playerID, sess := range r.subscribers {
		if snap := r.snapshotFor(playerID); snap != nil {
			r.sendTo(sess, ws.MsgGameState, snap)
		}
	}
	r.appendAndBroadcast(dealEvents)

	for _, seat := range seats {
		r.issueReconnectToken(seat.PlayerID)
	}

	r.startTurnTimer()
	r.persistSnapshot()
	r.log.Info("game started",
		zap.String("game_id", r.gameID),
		zap.String("mode", mode))
	return nil
}

// StartMatchmade begins a game in a matchmaking room. There is no host
// check: the matchmaker is the authority. For 2v2 the team lists fix the
// seating the way a party assignment would.
func (r *Room) StartMatchmade(mode string, team0, team1 []string) error {
	return r.callErr(func() error {
		switch mode {
		case Mode1v1:
			return r.beginGame(Mode1v1, 0)
		case Mode2v2Party:
			r.teams = &TeamAssignment{
				Team0: append([]string(nil), team0...),
				Team1: append([]string(nil), team1...),
			}
			return r.beginGame(Mode2v2Party, 0)
		default:
			return &Error{"bad_mode", "unknown game mode: " + mode}
		}
	})
}

// PlayCard applies the session's play_card intent.
func (r *Room) PlayCard(sess *ws.Client, cardID string) error {
	return r.callErr(func() error { return r.play(sess.PlayerID(), cardID, false) })
}

// PlayCardAs plays on another player's behalf; dev mode only.
func (r *Room) PlayCardAs(asPlayerID, cardID string) error {
	return r.callErr(func() error {
		if !r.devMode {
			return ErrDevOnly
		}
		return r.play(asPlayerID, cardID, false)
	})
}

func (r *Room) play(playerID, cardID string, forced bool) error {
	if r.phase != PhasePlaying || r.game == nil {
		return ErrGameNotActive
	}
	if r.pause != pauseNone {
		return ErrPaused
	}

	next, events, err := game.Play(*r.game, playerID, cardID)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrNotYourTurn):
			if r.lastExpired == playerID {
				return ErrTurnExpired
			}
			return ErrNotYourTurn
		case errors.Is(err, game.ErrIllegalCard), errors.Is(err, game.ErrBadCardID):
			return ErrIllegalCard
		case errors.Is(err, game.ErrRoundOver):
			return ErrPaused
		default:
			return &Error{"play_rejected", err.Error()}
		}
	}

	r.cancelTurnTimer()
	if !forced {
		r.lastExpired = ""
	}
	r.game = &next
	r.appendAndBroadcast(events)
	r.afterPlay(events)
	return nil
}

// afterPlay schedules whatever the play's events call for: the recap
// pause on round end, the talon pause on a capture, or simply the next
// turn's timer.
func (r *Room) afterPlay(events []game.Event) {
	if containsEvent(events, game.EventRoundEnd) {
		next, outcome, winner := game.ResolveTarget(*r.game, r.cfg.MatchTargetStep)
		r.game = &next
		if outcome == game.MatchWon {
			r.finishMatch(winner)
			return
		}
		r.beginPause(pauseRecap, r.cfg.RecapPause)
		return
	}

	if containsEvent(events, game.EventTalonTaken) {
		r.timerPending = true
		r.beginPause(pauseTalon, r.cfg.TalonPause)
		return
	}

	r.startTurnTimer()
}

func (r *Room) beginPause(kind pauseKind, d time.Duration) {
	r.pause = kind
	r.pauseEpoch++
	epoch := r.pauseEpoch
	time.AfterFunc(d, func() {
		r.do(func() { r.liftPause(epoch) })
	})
}

// liftPause resumes play when the epoch still matches: a stale lift from
// a pause superseded by a match end or room teardown is a no-op.
func (r *Room) liftPause(epoch int) {
	if epoch != r.pauseEpoch || r.destroyed {
		return
	}
	kind := r.pause
	r.pause = pauseNone

	switch kind {
	case pauseTalon:
		if r.phase == PhasePlaying && r.timerPending {
			r.timerPending = false
			r.startTurnTimer()
		}
	case pauseRecap:
		if r.phase == PhasePlaying && r.game != nil && r.game.RoundOver {
			next, events := game.NextRound(*r.game)
			r.game = &next
			r.appendAndBroadcast(events)
			r.startTurnTimer()
		}
	}
}

// startTurnTimer arms the countdown for the current turn and logs a
// turn_timer_started event with the deadline.
func (r *Room) startTurnTimer() {
	if !r.timerEnabled || r.phase != PhasePlaying || r.game == nil || r.game.RoundOver {
		return
	}

	r.turnEpoch++
	epoch := r.turnEpoch
	duration := r.cfg.TurnDuration
	r.turnDeadline = time.Now().Add(duration)

	ev, _ := game.NewEvent(game.EventTurnTimerStarted, "", game.TurnTimerStartedPayload{
		PlayerID:  r.game.CurrentTurnPlayerID(),
		Duration:  duration.Milliseconds(),
		ExpiresAt: r.turnDeadline.UnixMilli(),
	})
	r.appendAndBroadcast([]game.Event{ev})

	time.AfterFunc(duration, func() {
		r.do(func() { r.expireTurn(epoch) })
	})
}

// cancelTurnTimer invalidates any armed countdown.
func (r *Room) cancelTurnTimer() {
	r.turnEpoch++
	r.turnDeadline = time.Time{}
}

// expireTurn force-plays the leftmost hand card for the player whose
// countdown ran out. Stale epochs mean the turn already advanced.
func (r *Room) expireTurn(epoch int) {
	if epoch != r.turnEpoch || r.destroyed {
		return
	}
	if r.phase != PhasePlaying || r.game == nil || r.pause != pauseNone {
		return
	}

	playerID := r.game.CurrentTurnPlayerID()
	cardID, err := game.ForcedCardID(*r.game, playerID)
	if err != nil {
		r.log.Warn("turn expiry with no playable card",
			zap.String("player_id", playerID), zap.Error(err))
		return
	}

	r.lastExpired = playerID
	if err := r.play(playerID, cardID, true); err != nil {
		r.log.Warn("forced play failed",
			zap.String("player_id", playerID), zap.Error(err))
	}
}

// finishMatch ends the game: match_end is the final logged event, the
// result is persisted, and the room moves to postgame.
func (r *Room) finishMatch(winnerTeam int) {
	r.cancelTurnTimer()
	r.pauseEpoch++
	r.pause = pauseNone
	r.timerPending = false

	ev, _ := game.NewEvent(game.EventMatchEnd, "", game.MatchEndPayload{
		WinnerTeam:  winnerTeam,
		FinalScores: r.game.Scores,
	})
	r.appendAndBroadcast([]game.Event{ev})

	r.phase = PhasePostgame
	r.surrenderVotes = make(map[string]bool)
	r.rematchVotes = make(map[string]bool)
	r.broadcastMembership(game.Event{})

	if r.st != nil {
		result := &store.MatchResult{
			GameID:      r.gameID,
			RoomID:      r.ID,
			Mode:        r.mode,
			WinnerTeam:  winnerTeam,
			FinalScores: r.game.Scores,
			FinishedAt:  time.Now(),
		}
		for _, p := range r.game.Players {
			result.Players = append(result.Players, store.MemberRecord{
				PlayerID: p.ID,
				Name:     p.Name,
				Role:     RolePlayer,
			})
		}
		st := r.st
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.SaveMatchResult(ctx, result); err != nil {
				logger.Get().Warn("match result persistence failed",
					zap.String("game_id", result.GameID), zap.Error(err))
			}
		}()
	}

	r.persistSnapshot()
	r.log.Info("match finished",
		zap.String("game_id", r.gameID),
		zap.Int("winner_team", winnerTeam))
}

// VoteSurrender records a concession vote. When every living member of
// the voter's team has voted, the team concedes and the opponents win.
func (r *Room) VoteSurrender(playerID string) error {
	return r.callErr(func() error {
		if r.phase != PhasePlaying || r.game == nil {
			return ErrGameNotActive
		}
		seat, err := r.game.PlayerByID(playerID)
		if err != nil {
			return ErrNotMember
		}

		if r.surrenderVotes == nil {
			r.surrenderVotes = make(map[string]bool)
		}
		r.surrenderVotes[playerID] = true

		votes, living := 0, 0
		for _, p := range r.game.Players {
			if p.Team != seat.Team || r.findMember(p.ID) == nil {
				continue
			}
			living++
			if r.surrenderVotes[p.ID] {
				votes++
			}
		}

		r.broadcastMessage(ws.MsgSurrenderVoteAdded, ws.VotePayload{
			PlayerID: playerID,
			Team:     seat.Team,
			Votes:    votes,
			Needed:   living,
		})

		if living > 0 && votes >= living {
			r.broadcastMessage(ws.MsgTeamSurrendered, map[string]int{"team": seat.Team})
			r.finishMatch(1 - seat.Team)
		}
		return nil
	})
}

// VoteRematch records a rematch vote in postgame. A unanimous vote among
// player-role members starts a new game with the dealer rotated one seat.
func (r *Room) VoteRematch(playerID string) error {
	return r.callErr(func() error {
		if r.phase != PhasePostgame {
			return ErrNotPostgame
		}
		member := r.findMember(playerID)
		if member == nil || member.Role != RolePlayer {
			return ErrNotMember
		}

		if r.rematchVotes == nil {
			r.rematchVotes = make(map[string]bool)
		}
		r.rematchVotes[playerID] = true

		players := r.playersInJoinOrder()
		votes := 0
		for _, m := range players {
			if r.rematchVotes[m.PlayerID] {
				votes++
			}
		}

		r.broadcastMessage(ws.MsgRematchVoteAdded, ws.VotePayload{
			PlayerID: playerID,
			Votes:    votes,
			Needed:   len(players),
		})

		if len(players) == 0 || votes < len(players) {
			return nil
		}

		r.broadcastMessage(ws.MsgRematchStarted, nil)
		dealer := 0
		if r.game != nil {
			dealer = (r.game.DealerSeat + 1) % len(r.game.Players)
		}
		if startErr := r.beginGame(r.mode, dealer); startErr != nil {
			r.log.Warn("rematch start failed", zap.Error(startErr))
			msg, _ := ws.NewErrorMessage(ws.MsgStartError, reasonOf(startErr), startErr.Error())
			for _, sess := range r.subscribers {
				sess.SendMessage(msg)
			}
		}
		return nil
	})
}

// ExitGame leaves a finished game. In a matchmaking room the player is
// moved to a fresh private waiting room; a private room reverts to the
// waiting phase with its membership intact.
func (r *Room) ExitGame(playerID string) error {
	return r.callErr(func() error {
		if r.phase != PhasePostgame {
			return ErrNotPostgame
		}
		member := r.findMember(playerID)
		if member == nil {
			return ErrNotMember
		}

		if r.Visibility == VisibilityMatchmaking {
			name := member.Name
			sess := r.subscribers[playerID]

			r.broadcastMessage(ws.MsgGameExited, ws.PresencePayload{PlayerID: playerID})
			_ = r.removeMember(playerID, game.Event{}, "left")

			fresh := r.reg.Create(VisibilityPrivate)
			if sess != nil {
				if joinErr := fresh.Join(sess, name, RolePlayer); joinErr != nil {
					r.log.Warn("exit_game fallback join failed", zap.Error(joinErr))
					return nil
				}
				msg, _ := ws.NewMessage(ws.MsgReturnedToRoom, ws.RoomCreatedPayload{
					RoomID:      fresh.ID,
					Code:        fresh.Code,
					InviteToken: fresh.InviteToken,
				})
				sess.SendMessage(msg)
			}
			return nil
		}

		r.phase = PhaseWaiting
		r.game = nil
		r.gameID = ""
		r.mode = ""
		r.cancelTurnTimer()
		r.pauseEpoch++
		r.pause = pauseNone
		r.surrenderVotes = make(map[string]bool)
		r.rematchVotes = make(map[string]bool)

		r.broadcastMessage(ws.MsgStayedInRoom, ws.RoomRefPayload{RoomID: r.ID})
		r.broadcastMembership(game.Event{})
		r.persistSnapshot()
		return nil
	})
}

// ---- reconnection ----

// issueReconnectToken mints a one-shot rejoin credential and delivers it
// to the player's live session. Actor goroutine only.
func (r *Room) issueReconnectToken(playerID string) {
	token := uuid.NewString()
	r.tokens[playerID] = reconnectToken{
		token:     token,
		expiresAt: time.Now().Add(r.cfg.ReconnectTokenTTL),
	}
	if sess := r.subscribers[playerID]; sess != nil {
		r.sendTo(sess, ws.MsgReconnectToken, ws.ReconnectTokenPayload{
			RoomID: r.ID,
			Token:  token,
		})
	}
}

// Rejoin reattaches a session with a reconnect token. On success the
// session receives the membership and game snapshots, the event tail
// after lastSeq, and a fresh token; the used token is invalidated.
// Membership is untouched, so a rejoin is a no-op for everyone else
// beyond the presence change.
func (r *Room) Rejoin(sess *ws.Client, playerID, token string, lastSeq int) error {
	return r.callErr(func() error {
		member := r.findMember(playerID)
		if member == nil {
			return ErrRejoinDenied
		}
		issued, ok := r.tokens[playerID]
		if !ok || issued.token != token || time.Now().After(issued.expiresAt) {
			return ErrRejoinDenied
		}
		delete(r.tokens, playerID)

		if sess.PlayerID() == "" {
			sess.Stamp(playerID, member.Name, member.Role)
		}
		r.attachSession(sess)

		r.sendTo(sess, ws.MsgRoomUpdate, r.membershipPayload())
		if snap := r.snapshotFor(playerID); snap != nil {
			r.sendTo(sess, ws.MsgGameState, snap)
		}
		for _, ev := range r.events {
			if ev.Seq <= lastSeq {
				continue
			}
			r.sendTo(sess, ws.MsgGameEvent, redactEventFor(ev, playerID))
		}
		r.issueReconnectToken(playerID)
		return nil
	})
}

func containsEvent(events []game.Event, eventType game.EventType) bool {
	for _, ev := range events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

// reasonOf extracts the machine-readable reason from a room error.
func reasonOf(err error) string {
	var roomErr *Error
	if errors.As(err, &roomErr) {
		return roomErr.Reason
	}
	return "internal"
}
