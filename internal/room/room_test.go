package room

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zing-server/internal/config"
	"zing-server/internal/game"
	"zing-server/internal/store"
	"zing-server/internal/ws"
)

func testRegistry(cfg *config.Config) *Registry {
	return NewRegistry(cfg, store.NewMemoryStore())
}

func testClient(playerID, name string) *ws.Client {
	c := ws.NewClient(nil, nil, "sess-"+playerID)
	c.Stamp(playerID, name, RolePlayer)
	return c
}

// nextOfType drains the client's send buffer until a message of the
// wanted type arrives.
func nextOfType(t *testing.T, c *ws.Client, msgType ws.MessageType, timeout time.Duration) *ws.Message {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case raw := <-c.Send:
			var msg ws.Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			if msg.Type == msgType {
				return &msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
			return nil
		}
	}
}

func TestJoinMakesFirstPlayerHost(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))

	assert.Equal(t, "p1", r.HostID())
	assert.Len(t, r.Members(), 2)
	assert.Equal(t, r.ID, c1.RoomID())
	assert.Equal(t, ws.StateInRoom, c1.State())

	nextOfType(t, c2, ws.MsgRoomUpdate, time.Second)
}

func TestJoinCapacity(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		c := testClient(id, "Player")
		require.NoError(t, r.Join(c, "Player", RolePlayer), "join %d", i)
	}

	fifth := testClient("p5", "Late")
	assert.ErrorIs(t, r.Join(fifth, "Late", RolePlayer), ErrRoomFull)

	// Spectator seats are separate from player seats.
	spec := testClient("s1", "Watcher")
	assert.NoError(t, r.Join(spec, "Watcher", RoleSpectator))
}

func TestLeaveRunsHostSuccession(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))

	require.NoError(t, r.Leave("p1"))
	assert.Equal(t, "p2", r.HostID())
	assert.Len(t, r.Members(), 1)
	assert.Equal(t, "", c1.RoomID())
}

func TestLastLeaveDestroysRoom(t *testing.T) {
	reg := testRegistry(config.Default())
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Leave("p1"))

	assert.Nil(t, reg.Get(r.ID))
	assert.Equal(t, 0, reg.Count())
}

func TestKick(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))

	assert.ErrorIs(t, r.Kick("p2", "p1"), ErrNotHost)
	assert.ErrorIs(t, r.Kick("p1", "p1"), ErrKickSelf)

	require.NoError(t, r.Kick("p1", "p2"))
	assert.Len(t, r.Members(), 1)
	nextOfType(t, c2, ws.MsgYouWereKicked, time.Second)
}

func TestSetRoleAndToggleTimer(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))

	require.NoError(t, r.SetRole("p1", "p2", RoleSpectator))
	members := r.Members()
	require.Len(t, members, 2)
	for _, m := range members {
		if m.PlayerID == "p2" {
			assert.Equal(t, RoleSpectator, m.Role)
		}
	}

	assert.ErrorIs(t, r.SetRole("p1", "p2", "referee"), ErrBadRole)
	require.NoError(t, r.ToggleTimer("p1", false))
	assert.ErrorIs(t, r.ToggleTimer("p2", true), ErrNotHost)
}

func TestSetRoleAllowedPostgame(t *testing.T) {
	reg, r, _, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	assert.ErrorIs(t, r.SetRole("p1", "p2", RoleSpectator), ErrGameInProgress)

	require.NoError(t, r.VoteSurrender("p1"))
	require.NoError(t, r.SetRole("p1", "p2", RoleSpectator))

	for _, m := range r.Members() {
		if m.PlayerID == "p2" {
			assert.Equal(t, RoleSpectator, m.Role)
		}
	}
}

func startedRoom(t *testing.T, cfg *config.Config) (*Registry, *Room, *ws.Client, *ws.Client) {
	t.Helper()
	reg := testRegistry(cfg)
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))
	require.NoError(t, r.StartGame("p1", Mode1v1))
	return reg, r, c1, c2
}

func TestStartGameValidation(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))

	assert.ErrorIs(t, r.StartGame("p1", Mode1v1), ErrPlayerCount)
	assert.ErrorIs(t, r.StartGame("p2", Mode1v1), ErrNotHost)
	assert.ErrorIs(t, r.StartGame("p1", Mode2v2Random), ErrPlayerCount)
	assert.ErrorIs(t, r.StartGame("p1", Mode2v2Party), ErrPlayerCount)
}

func TestStart2v2RandomIsTwoPlayerGame(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))

	require.NoError(t, r.StartGame("p1", Mode2v2Random))
	assert.Equal(t, PhasePlaying, r.CurrentPhase())

	var state *GameStatePayload
	r.call(func() { state = r.snapshotFor("p1") })
	require.NotNil(t, state)
	require.Len(t, state.Players, 2)
	assert.Equal(t, 0, state.Players[0].Team, "seat index doubles as team tag")
	assert.Equal(t, 1, state.Players[1].Team)
}

func TestStart2v2RandomRejectsFourPlayers(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		c := testClient(id, "Player")
		require.NoError(t, r.Join(c, "Player", RolePlayer))
	}

	assert.ErrorIs(t, r.StartGame("p1", Mode2v2Random), ErrPlayerCount)
}

func TestStartGameDealsAndRedactsHands(t *testing.T) {
	reg, r, c1, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	assert.Equal(t, PhasePlaying, r.CurrentPhase())

	nextOfType(t, c1, ws.MessageType(game.EventGameStarted), time.Second)
	nextOfType(t, c1, ws.MsgGameState, time.Second)

	dealt := nextOfType(t, c1, ws.MessageType(game.EventHandsDealt), time.Second)
	var payload game.HandsDealtPayload
	require.NoError(t, json.Unmarshal(dealt.Payload, &payload))
	require.Contains(t, payload.Dealt, "p1")
	assert.NotContains(t, payload.Dealt, "p2", "opponent hands are redacted")
	assert.Len(t, payload.Dealt["p1"], 4)

	token := nextOfType(t, c1, ws.MsgReconnectToken, time.Second)
	var tokenPayload ws.ReconnectTokenPayload
	require.NoError(t, json.Unmarshal(token.Payload, &tokenPayload))
	assert.Equal(t, r.ID, tokenPayload.RoomID)
	assert.NotEmpty(t, tokenPayload.Token)
}

func TestJoinDuringGameBecomesSpectator(t *testing.T) {
	reg, r, _, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	late := testClient("p3", "Cira")
	require.NoError(t, r.Join(late, "Cira", RolePlayer))

	for _, m := range r.Members() {
		if m.PlayerID == "p3" {
			assert.Equal(t, RoleSpectator, m.Role)
		}
	}
}

func TestTurnTimerForcesPlay(t *testing.T) {
	cfg := config.Default()
	cfg.TurnDuration = 50 * time.Millisecond
	cfg.TalonPause = 5 * time.Millisecond

	reg, r, c1, _ := startedRoom(t, cfg)
	defer reg.Teardown()

	timer := nextOfType(t, c1, ws.MessageType(game.EventTurnTimerStarted), time.Second)
	var timerPayload game.TurnTimerStartedPayload
	require.NoError(t, json.Unmarshal(timer.Payload, &timerPayload))
	firstTurn := timerPayload.PlayerID

	played := nextOfType(t, c1, ws.MessageType(game.EventCardPlayed), time.Second)
	var playPayload game.CardPlayedPayload
	require.NoError(t, json.Unmarshal(played.Payload, &playPayload))
	assert.Equal(t, firstTurn, playPayload.PlayerID, "expiry plays for the blocked player")

	// The expired player's late intent is answered with turn_expired.
	late := testClient(firstTurn, "late")
	err := r.PlayCard(late, playPayload.CardID)
	assert.ErrorIs(t, err, ErrTurnExpired)
}

func TestTimerDisabledMeansNoForcedPlay(t *testing.T) {
	cfg := config.Default()
	cfg.TurnDuration = 20 * time.Millisecond

	reg := testRegistry(cfg)
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))
	require.NoError(t, r.ToggleTimer("p1", false))
	require.NoError(t, r.StartGame("p1", Mode1v1))

	time.Sleep(100 * time.Millisecond)

	var state *GameStatePayload
	r.call(func() { state = r.snapshotFor("p1") })
	require.NotNil(t, state)
	assert.Equal(t, 1, state.HandNumber)
	for _, p := range state.Players {
		assert.Equal(t, 4, p.HandCount, "no card should have been forced")
	}
}

func TestRejoinWithToken(t *testing.T) {
	reg, r, c1, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	// Game start reissues tokens, invalidating the join-time one; skip
	// ahead to the fresh token.
	nextOfType(t, c1, ws.MessageType(game.EventHandsDealt), time.Second)
	token := nextOfType(t, c1, ws.MsgReconnectToken, time.Second)
	var tokenPayload ws.ReconnectTokenPayload
	require.NoError(t, json.Unmarshal(token.Payload, &tokenPayload))

	r.HandleDisconnect(c1)

	replacement := ws.NewClient(nil, nil, "sess-p1-reborn")
	require.NoError(t, r.Rejoin(replacement, "p1", tokenPayload.Token, 0))

	assert.Equal(t, "p1", replacement.PlayerID())
	assert.Equal(t, RolePlayer, replacement.Role(), "the stored member role is stamped")
	assert.Equal(t, r.ID, replacement.RoomID())
	assert.Len(t, r.Members(), 2, "rejoin does not change membership")

	nextOfType(t, replacement, ws.MsgRoomUpdate, time.Second)
	snap := nextOfType(t, replacement, ws.MsgGameState, time.Second)
	var state GameStatePayload
	require.NoError(t, json.Unmarshal(snap.Payload, &state))
	assert.Greater(t, state.LastSeq, 0)

	tail := nextOfType(t, replacement, ws.MsgGameEvent, time.Second)
	var ev game.Event
	require.NoError(t, json.Unmarshal(tail.Payload, &ev))
	assert.Greater(t, ev.Seq, 0)

	// Tokens are one-shot.
	again := ws.NewClient(nil, nil, "sess-p1-again")
	assert.ErrorIs(t, r.Rejoin(again, "p1", tokenPayload.Token, 0), ErrRejoinDenied)

	bad := ws.NewClient(nil, nil, "sess-bad")
	assert.ErrorIs(t, r.Rejoin(bad, "p1", "made-up", 0), ErrRejoinDenied)
}

func TestSurrenderEndsMatch(t *testing.T) {
	reg, r, c1, c2 := startedRoom(t, config.Default())
	defer reg.Teardown()

	require.NoError(t, r.VoteSurrender("p1"))

	assert.Equal(t, PhasePostgame, r.CurrentPhase())
	nextOfType(t, c1, ws.MsgTeamSurrendered, time.Second)

	matchEnd := nextOfType(t, c2, ws.MessageType(game.EventMatchEnd), time.Second)
	var payload game.MatchEndPayload
	require.NoError(t, json.Unmarshal(matchEnd.Payload, &payload))
	assert.Equal(t, 1, payload.WinnerTeam, "the opposing team wins on concession")
}

func TestRematchRestartsWithRotatedDealer(t *testing.T) {
	reg, r, c1, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	require.NoError(t, r.VoteSurrender("p1"))
	require.NoError(t, r.VoteRematch("p1"))
	assert.Equal(t, PhasePostgame, r.CurrentPhase(), "one vote is not enough")

	require.NoError(t, r.VoteRematch("p2"))
	assert.Equal(t, PhasePlaying, r.CurrentPhase())

	nextOfType(t, c1, ws.MsgRematchStarted, 2*time.Second)

	var dealer int
	r.call(func() { dealer = r.game.DealerSeat })
	assert.Equal(t, 1, dealer, "the dealer rotates between games")
}

func TestExitGamePrivateRevertsToWaiting(t *testing.T) {
	reg, r, c1, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	assert.ErrorIs(t, r.ExitGame("p1"), ErrNotPostgame)

	require.NoError(t, r.VoteSurrender("p1"))
	require.NoError(t, r.ExitGame("p1"))

	assert.Equal(t, PhaseWaiting, r.CurrentPhase())
	assert.Len(t, r.Members(), 2, "private rooms keep their membership")
	nextOfType(t, c1, ws.MsgStayedInRoom, time.Second)
}

func TestExitGameMatchmakingMovesToFreshRoom(t *testing.T) {
	cfg := config.Default()
	reg := testRegistry(cfg)
	defer reg.Teardown()
	r := reg.Create(VisibilityMatchmaking)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))
	require.NoError(t, r.StartMatchmade(Mode1v1, nil, nil))
	require.NoError(t, r.VoteSurrender("p1"))

	require.NoError(t, r.ExitGame("p1"))

	moved := nextOfType(t, c1, ws.MsgReturnedToRoom, time.Second)
	var payload ws.RoomCreatedPayload
	require.NoError(t, json.Unmarshal(moved.Payload, &payload))
	assert.NotEqual(t, r.ID, payload.RoomID)
	assert.Equal(t, payload.RoomID, c1.RoomID())

	fresh := reg.Get(payload.RoomID)
	require.NotNil(t, fresh)
	assert.Equal(t, VisibilityPrivate, fresh.Visibility)
	assert.Equal(t, PhaseWaiting, fresh.CurrentPhase())

	assert.Len(t, r.Members(), 1, "the exiting player left the old room")
	nextOfType(t, c2, ws.MsgGameExited, time.Second)
}

func TestDisconnectInWaitingReleasesMembership(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()
	r := reg.Create(VisibilityPrivate)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	require.NoError(t, r.Join(c1, "Ana", RolePlayer))
	require.NoError(t, r.Join(c2, "Bo", RolePlayer))

	r.HandleDisconnect(c2)
	assert.Len(t, r.Members(), 1)
}

func TestDisconnectMidGameKeepsSeat(t *testing.T) {
	reg, r, c1, _ := startedRoom(t, config.Default())
	defer reg.Teardown()

	r.HandleDisconnect(c1)
	assert.Len(t, r.Members(), 2, "mid-game disconnects keep the seat for reconnection")
	assert.Equal(t, PhasePlaying, r.CurrentPhase())
}

func TestDisconnectGraceReclaimsAbandonedSeat(t *testing.T) {
	cfg := config.Default()
	cfg.DisconnectGrace = 30 * time.Millisecond

	reg, r, c1, _ := startedRoom(t, cfg)
	defer reg.Teardown()

	r.HandleDisconnect(c1)
	assert.Len(t, r.Members(), 2, "the seat survives within the grace window")

	time.Sleep(150 * time.Millisecond)

	assert.Len(t, r.Members(), 1)
	assert.Equal(t, PhasePostgame, r.CurrentPhase(), "a team with nobody left concedes")
}

func TestReattachWithinGraceKeepsSeat(t *testing.T) {
	cfg := config.Default()
	cfg.DisconnectGrace = 40 * time.Millisecond

	reg, r, c1, _ := startedRoom(t, cfg)
	defer reg.Teardown()

	r.HandleDisconnect(c1)

	replacement := testClient("p1", "Ana")
	require.NoError(t, r.Join(replacement, "Ana", RolePlayer))

	time.Sleep(150 * time.Millisecond)

	assert.Len(t, r.Members(), 2, "reattaching cancels the grace removal")
	assert.Equal(t, PhasePlaying, r.CurrentPhase())
}

func TestRegistryLookups(t *testing.T) {
	reg := testRegistry(config.Default())
	defer reg.Teardown()

	r := reg.Create(VisibilityPrivate)
	assert.Len(t, r.Code, 6)
	assert.Same(t, r, reg.Get(r.ID))
	assert.Same(t, r, reg.GetByCode(r.Code))
	assert.Same(t, r, reg.GetByCode(strings.ToUpper(r.Code)), "codes are case-insensitive")
	assert.Same(t, r, reg.GetByInviteToken(r.InviteToken))
	assert.Nil(t, reg.GetByCode("zzzzzz"))

	r.Destroy()
	assert.Nil(t, reg.Get(r.ID))
	assert.Nil(t, reg.GetByCode(r.Code))
	assert.Nil(t, reg.GetByInviteToken(r.InviteToken))
}
