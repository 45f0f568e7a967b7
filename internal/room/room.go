package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"zing-server/internal/config"
	"zing-server/internal/game"
	"zing-server/internal/logger"
	"zing-server/internal/store"
	"zing-server/internal/ws"
)

// Visibility distinguishes private rooms from matchmaking-created ones.
type Visibility string

const (
	VisibilityPrivate     Visibility = "private"
	VisibilityMatchmaking Visibility = "matchmaking"
)

// Phase is the room lifecycle phase.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhasePostgame Phase = "postgame"
)

const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"

	maxPlayers = 4
)

// Member is one room member. Insertion order defines seat order at game
// start.
type Member struct {
	PlayerID string
	Name     string
	Role     string
	JoinedAt time.Time
}

// TeamAssignment fixes 2v2 party teams before game start.
type TeamAssignment struct {
	Team0 []string
	Team1 []string
}

type pauseKind int

const (
	pauseNone pauseKind = iota
	pauseTalon
	pauseRecap
)

type reconnectToken struct {
	token     string
	expiresAt time.Time
}

// Room is the single serialization point for one room: every membership
// and gameplay mutation runs on its actor goroutine, one op at a time.
type Room struct {
	ID          string
	Code        string
	InviteToken string
	Visibility  Visibility

	cfg *config.Config
	st  store.Store
	reg *Registry
	log *zap.Logger

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the actor goroutine.
	members        []*Member
	hostID         string
	timerEnabled   bool
	devMode        bool
	teams          *TeamAssignment
	phase          Phase
	mode           string
	gameID         string
	game           *game.State
	events         []game.Event
	subscribers    map[string]*ws.Client
	tokens         map[string]reconnectToken
	surrenderVotes map[string]bool
	rematchVotes   map[string]bool
	graceEpochs    map[string]int

	pause        pauseKind
	pauseEpoch   int
	turnEpoch    int
	turnDeadline time.Time
	timerPending bool
	lastExpired  string

	destroyed bool
}

func newRoom(id, code, inviteToken string, visibility Visibility, cfg *config.Config, st store.Store, reg *Registry) *Room {
	return &Room{
		ID:          id,
		Code:        code,
		InviteToken: inviteToken,
		Visibility:  visibility,

		cfg: cfg,
		st:  st,
		reg: reg,
		log: logger.Get().With(zap.String("room_id", id)),

		ops:          make(chan func(), 64),
		done:         make(chan struct{}),
		timerEnabled: true,
		devMode:      cfg.DevModeEnabled,
		phase:        PhaseWaiting,
		subscribers:  make(map[string]*ws.Client),
		tokens:       make(map[string]reconnectToken),
		graceEpochs:  make(map[string]int),
	}
}

// SetDevMode gates the intent_play_card_as impersonation intent.
func (r *Room) SetDevMode(enabled bool) {
	r.call(func() { r.devMode = enabled })
}

// run is the actor loop.
func (r *Room) run() {
	for {
		select {
		case op := <-r.ops:
			op()
		case <-r.done:
			return
		}
	}
}

// do enqueues an op without waiting for it.
func (r *Room) do(op func()) {
	select {
	case r.ops <- op:
	case <-r.done:
	}
}

// call enqueues an op and waits until the actor has run it.
func (r *Room) call(op func()) {
	ran := make(chan struct{})
	r.do(func() {
		op()
		close(ran)
	})
	select {
	case <-ran:
	case <-r.done:
	}
}

// callErr runs op on the actor and returns its error. When the room is
// already torn down the op never runs and the room counts as gone.
func (r *Room) callErr(op func() error) error {
	err := error(ErrRoomNotFound)
	r.call(func() { err = op() })
	return err
}

// Error is a client-visible room error.
type Error struct {
	Reason  string
	Message string
}

func (e *Error) Error() string { return e.Reason + ": " + e.Message }

var (
	ErrRoomNotFound   = &Error{"room_not_found", "room does not exist"}
	ErrRoomFull       = &Error{"room_full", "room is full"}
	ErrGameInProgress = &Error{"game_in_progress", "a game is in progress"}
	ErrGameNotActive  = &Error{"game_not_active", "no game is in progress"}
	ErrAlreadyStarted = &Error{"already_started", "a game has already started"}
	ErrNotHost        = &Error{"not_host", "only the host may do that"}
	ErrKickSelf       = &Error{"kick_self_forbidden", "the host cannot kick themselves"}
	ErrNotMember      = &Error{"not_member", "player is not a member of this room"}
	ErrBadRole        = &Error{"bad_role", "role must be player or spectator"}
	ErrPaused         = &Error{"paused", "play is paused"}
	ErrNotYourTurn    = &Error{"not_your_turn", "it is not your turn"}
	ErrIllegalCard    = &Error{"illegal_card", "that card cannot be played"}
	ErrTurnExpired    = &Error{"turn_expired", "the turn timer already played for you"}
	ErrTeamsMissing   = &Error{"team_assignment_missing", "2v2 party mode needs a team assignment"}
	ErrPlayerCount    = &Error{"wrong_player_count", "wrong number of players for this mode"}
	ErrDevOnly        = &Error{"dev_only", "impersonation is only available in dev mode"}
	ErrRejoinDenied   = &Error{"rejoin_denied", "reconnect token invalid or expired"}
	ErrNotPostgame    = &Error{"not_postgame", "no finished game to act on"}
)

// ---- membership ----

// Join admits or reattaches a player. The session is subscribed on
// success and receives the room snapshot and a fresh reconnect token.
func (r *Room) Join(sess *ws.Client, name, role string) error {
	return r.callErr(func() error { return r.join(sess, name, role) })
}

func (r *Room) join(sess *ws.Client, name, role string) error {
	if r.destroyed {
		return ErrRoomNotFound
	}

	playerID := sess.PlayerID()
	if existing := r.findMember(playerID); existing != nil {
		// Reattach: refresh the name, keep the role.
		if name != "" {
			existing.Name = name
		}
		r.attachSession(sess)
		r.issueReconnectToken(playerID)
		r.broadcastMembership(game.Event{})
		r.sendSnapshot(sess)
		return nil
	}

	if role != RoleSpectator {
		role = RolePlayer
	}
	if r.phase != PhaseWaiting {
		// Mid-game joins are admitted as spectators only.
		role = RoleSpectator
	}

	if role == RolePlayer && r.countRole(RolePlayer) >= maxPlayers {
		return ErrRoomFull
	}
	if role == RoleSpectator && r.countRole(RoleSpectator) >= r.cfg.MaxSpectators {
		return ErrRoomFull
	}

	member := &Member{
		PlayerID: playerID,
		Name:     name,
		Role:     role,
		JoinedAt: time.Now(),
	}
	r.members = append(r.members, member)
	if r.hostID == "" {
		r.hostID = playerID
	}

	r.attachSession(sess)
	r.issueReconnectToken(playerID)
	r.broadcastMembership(game.Event{})
	if r.game != nil {
		r.sendSnapshot(sess)
	}
	r.persistSnapshot()
	return nil
}

// Leave removes a player's membership.
func (r *Room) Leave(playerID string) error {
	return r.callErr(func() error { return r.removeMember(playerID, game.Event{}, "left") })
}

// Kick removes a member at the host's request.
func (r *Room) Kick(callerID, targetID string) error {
	return r.callErr(func() error {
		if callerID != r.hostID {
			return ErrNotHost
		}
		if targetID == callerID {
			return ErrKickSelf
		}
		if r.findMember(targetID) == nil {
			return ErrNotMember
		}
		if sess := r.subscribers[targetID]; sess != nil {
			r.sendTo(sess, ws.MsgYouWereKicked, ws.PresencePayload{PlayerID: targetID})
		}
		return r.removeMember(targetID, game.Event{}, "kicked")
	})
}

// SetRole moves a member between player and spectator; host only, and
// only while no game is active.
func (r *Room) SetRole(callerID, targetID, role string) error {
	return r.callErr(func() error {
		if callerID != r.hostID {
			return ErrNotHost
		}
		if r.phase == PhasePlaying {
			return ErrGameInProgress
		}
		if role != RolePlayer && role != RoleSpectator {
			return ErrBadRole
		}
		target := r.findMember(targetID)
		if target == nil {
			return ErrNotMember
		}
		if target.Role == role {
			return nil
		}
		if role == RolePlayer && r.countRole(RolePlayer) >= maxPlayers {
			return ErrRoomFull
		}
		if role == RoleSpectator && r.countRole(RoleSpectator) >= r.cfg.MaxSpectators {
			return ErrRoomFull
		}
		target.Role = role
		ev, _ := game.NewEvent("role_changed", callerID, map[string]string{
			"playerId": targetID,
			"role":     role,
		})
		r.broadcastMembership(ev)
		return nil
	})
}

// ToggleTimer enables or disables the turn timer; host only, outside an
// active game.
func (r *Room) ToggleTimer(callerID string, enabled bool) error {
	return r.callErr(func() error {
		if callerID != r.hostID {
			return ErrNotHost
		}
		if r.phase == PhasePlaying {
			return ErrGameInProgress
		}
		r.timerEnabled = enabled
		r.broadcastMembership(game.Event{})
		return nil
	})
}

// SetTeams fixes the 2v2 party team assignment; host only, while waiting.
func (r *Room) SetTeams(callerID string, team0, team1 []string) error {
	return r.callErr(func() error {
		if callerID != r.hostID {
			return ErrNotHost
		}
		if r.phase != PhaseWaiting {
			return ErrGameInProgress
		}
		if len(team0) != 2 || len(team1) != 2 {
			return ErrTeamsMissing
		}
		seen := map[string]bool{}
		for _, id := range append(append([]string{}, team0...), team1...) {
			m := r.findMember(id)
			if m == nil || m.Role != RolePlayer || seen[id] {
				return ErrTeamsMissing
			}
			seen[id] = true
		}
		r.teams = &TeamAssignment{
			Team0: append([]string(nil), team0...),
			Team1: append([]string(nil), team1...),
		}
		r.broadcastMessage(ws.MsgTeamsUpdated, r.membershipPayload())
		return nil
	})
}

// HandleDisconnect detaches a dropped session. Mid-game the seat stays
// occupied for the reconnection grace period; in the waiting phase the
// membership is released immediately.
func (r *Room) HandleDisconnect(sess *ws.Client) {
	r.call(func() {
		playerID := sess.PlayerID()
		if current, ok := r.subscribers[playerID]; !ok || current != sess {
			return
		}
		delete(r.subscribers, playerID)
		r.broadcastMessage(ws.MsgUserOffline, ws.PresencePayload{PlayerID: playerID})

		if r.phase == PhaseWaiting {
			_ = r.removeMember(playerID, game.Event{}, "left")
			return
		}
		r.scheduleGraceRemoval(playerID)
	})
}

// scheduleGraceRemoval arms the reconnection grace countdown for a
// disconnected member. When it fires with the player still offline, the
// membership is released, with the usual succession, concession, and
// destruction consequences. Reattaching cancels the countdown.
func (r *Room) scheduleGraceRemoval(playerID string) {
	r.graceEpochs[playerID]++
	epoch := r.graceEpochs[playerID]
	time.AfterFunc(r.cfg.DisconnectGrace, func() {
		r.do(func() {
			if r.destroyed || epoch != r.graceEpochs[playerID] {
				return
			}
			if _, online := r.subscribers[playerID]; online {
				return
			}
			_ = r.removeMember(playerID, game.Event{}, "left")
		})
	})
}

// Detach unsubscribes a session that is switching rooms; processes an
// implicit member_left unless the player has another session here.
func (r *Room) Detach(sess *ws.Client) {
	r.call(func() {
		playerID := sess.PlayerID()
		if current, ok := r.subscribers[playerID]; ok && current == sess {
			delete(r.subscribers, playerID)
			_ = r.removeMember(playerID, game.Event{}, "left")
		}
	})
}

// Members returns a copy of the membership list.
func (r *Room) Members() []Member {
	var out []Member
	r.call(func() {
		for _, m := range r.members {
			out = append(out, *m)
		}
	})
	return out
}

// CurrentPhase returns the current lifecycle phase.
func (r *Room) CurrentPhase() Phase {
	var p Phase
	r.call(func() { p = r.phase })
	return p
}

// HostID returns the current host.
func (r *Room) HostID() string {
	var id string
	r.call(func() { id = r.hostID })
	return id
}

// Destroy tears the room down: timers cancelled, registry entry and
// persisted state removed.
func (r *Room) Destroy() {
	r.call(func() { r.destroy() })
}

func (r *Room) destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.turnEpoch++
	r.pauseEpoch++

	st := r.st
	roomID := r.ID
	if st != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.DeleteRoom(ctx, roomID); err != nil {
				logger.Get().Warn("failed to delete persisted room",
					zap.String("room_id", roomID), zap.Error(err))
			}
		}()
	}

	r.reg.remove(r)
	r.log.Info("room destroyed")
	r.closeOnce.Do(func() { close(r.done) })
}

// ---- internal helpers (actor goroutine only) ----

func (r *Room) findMember(playerID string) *Member {
	for _, m := range r.members {
		if m.PlayerID == playerID {
			return m
		}
	}
	return nil
}

func (r *Room) countRole(role string) int {
	n := 0
	for _, m := range r.members {
		if m.Role == role {
			n++
		}
	}
	return n
}

func (r *Room) playersInJoinOrder() []*Member {
	players := make([]*Member, 0, maxPlayers)
	for _, m := range r.members {
		if m.Role == RolePlayer {
			players = append(players, m)
		}
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	return players
}

// attachSession subscribes a session, evicting any prior session for the
// same player from this room's subscriber set.
func (r *Room) attachSession(sess *ws.Client) {
	playerID := sess.PlayerID()
	if prior, ok := r.subscribers[playerID]; ok && prior != sess {
		prior.SetRoomID("")
	}
	r.subscribers[playerID] = sess
	sess.SetRoomID(r.ID)
	r.graceEpochs[playerID]++
	r.broadcastMessage(ws.MsgUserOnline, ws.PresencePayload{PlayerID: playerID})
}

// removeMember drops membership, runs host succession, settles game
// consequences, and destroys the room when it empties.
func (r *Room) removeMember(playerID string, extra game.Event, how string) error {
	member := r.findMember(playerID)
	if member == nil {
		return ErrNotMember
	}

	for i, m := range r.members {
		if m.PlayerID == playerID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if sess, ok := r.subscribers[playerID]; ok {
		delete(r.subscribers, playerID)
		sess.SetRoomID("")
	}
	delete(r.tokens, playerID)
	delete(r.surrenderVotes, playerID)
	delete(r.rematchVotes, playerID)
	delete(r.graceEpochs, playerID)

	eventType := game.EventType("member_left")
	if how == "kicked" {
		eventType = "member_kicked"
	}
	ev, _ := game.NewEvent(eventType, playerID, ws.PresencePayload{PlayerID: playerID})
	r.appendAndBroadcast([]game.Event{ev})

	if len(r.members) == 0 {
		r.destroy()
		return nil
	}

	if r.hostID == playerID {
		r.electHost()
	}

	if r.phase == PhasePlaying && r.game != nil {
		r.settleDeparture(playerID)
	}

	r.broadcastMembership(extra)
	r.persistSnapshot()
	return nil
}

// electHost picks the earliest-joined player-role member, else the
// earliest spectator. Callers guarantee the room is non-empty.
func (r *Room) electHost() {
	var successor *Member
	for _, role := range []string{RolePlayer, RoleSpectator} {
		for _, m := range r.members {
			if m.Role != role {
				continue
			}
			if successor == nil || m.JoinedAt.Before(successor.JoinedAt) {
				successor = m
			}
		}
		if successor != nil {
			break
		}
	}

	r.hostID = successor.PlayerID
	ev, _ := game.NewEvent("host_changed", "", map[string]string{"hostId": r.hostID})
	r.appendAndBroadcast([]game.Event{ev})
}

// settleDeparture concedes the match when a departing player leaves a
// team with no living members.
func (r *Room) settleDeparture(playerID string) {
	p, err := r.game.PlayerByID(playerID)
	if err != nil {
		return // spectator left; nothing to settle
	}

	living := 0
	for _, seat := range r.game.Players {
		if seat.Team == p.Team && r.findMember(seat.ID) != nil {
			living++
		}
	}
	if living > 0 {
		return
	}

	r.broadcastMessage(ws.MsgTeamSurrendered, map[string]int{"team": p.Team})
	r.finishMatch(1 - p.Team)
}

// broadcastMembership logs and broadcasts a room_update snapshot; extra,
// when non-zero, is appended to the log first.
func (r *Room) broadcastMembership(extra game.Event) {
	events := make([]game.Event, 0, 2)
	if extra.Type != "" {
		events = append(events, extra)
	}
	ev, _ := game.NewEvent("room_update", "", r.membershipPayload())
	events = append(events, ev)
	r.appendAndBroadcast(events)
}

// appendAndBroadcast assigns sequence numbers, appends to the event log,
// persists opportunistically, and fans the events out to subscribers in
// seq order.
func (r *Room) appendAndBroadcast(events []game.Event) {
	if len(events) == 0 {
		return
	}

	for i := range events {
		events[i].Seq = len(r.events) + 1
		r.events = append(r.events, events[i])
	}

	st := r.st
	if st != nil {
		persisted := append([]game.Event(nil), events...)
		roomID := r.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.AppendEvents(ctx, roomID, persisted); err != nil {
				logger.Get().Warn("event log persistence failed",
					zap.String("room_id", roomID), zap.Error(err))
			}
		}()
	}

	for playerID, sess := range r.subscribers {
		for _, ev := range events {
			msg, err := ws.NewMessage(ws.MessageType(ev.Type), redactEventFor(ev, playerID))
			if err != nil {
				r.log.Warn("failed to encode event", zap.Error(err))
				continue
			}
			if err := sess.SendMessage(msg); err != nil {
				r.log.Debug("dropping event for slow session",
					zap.String("player_id", playerID),
					zap.Int("seq", ev.Seq),
					zap.Error(err))
			}
		}
	}
}

// broadcastMessage sends a non-logged message to every subscriber.
func (r *Room) broadcastMessage(msgType ws.MessageType, payload interface{}) {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		r.log.Warn("failed to encode message", zap.Error(err))
		return
	}
	for playerID, sess := range r.subscribers {
		if err := sess.SendMessage(msg); err != nil {
			r.log.Debug("dropping message for slow session",
				zap.String("player_id", playerID), zap.Error(err))
		}
	}
}

func (r *Room) sendTo(sess *ws.Client, msgType ws.MessageType, payload interface{}) {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		r.log.Warn("failed to encode message", zap.Error(err))
		return
	}
	if err := sess.SendMessage(msg); err != nil {
		r.log.Debug("targeted send failed", zap.Error(err))
	}
}

func (r *Room) sendSnapshot(sess *ws.Client) {
	r.sendTo(sess, ws.MsgRoomUpdate, r.membershipPayload())
	if snap := r.snapshotFor(sess.PlayerID()); snap != nil {
		r.sendTo(sess, ws.MsgGameState, snap)
	}
}

func (r *Room) persistSnapshot() {
	if r.st == nil {
		return
	}

	members := make([]store.MemberRecord, len(r.members))
	for i, m := range r.members {
		members[i] = store.MemberRecord{
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		}
	}
	snapshot := &store.RoomSnapshot{
		ID:           r.ID,
		Code:         r.Code,
		Visibility:   string(r.Visibility),
		HostID:       r.hostID,
		Members:      members,
		Phase:        string(r.phase),
		TimerEnabled: r.timerEnabled,
		UpdatedAt:    time.Now(),
	}

	st := r.st
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.SaveRoomSnapshot(ctx, snapshot); err != nil {
			logger.Get().Warn("room snapshot persistence failed",
				zap.String("room_id", snapshot.ID), zap.Error(err))
		}
	}()
}
