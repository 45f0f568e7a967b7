package matchmaking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zing-server/internal/config"
	"zing-server/internal/room"
	"zing-server/internal/store"
	"zing-server/internal/ws"
)

func testSetup(t *testing.T) (*room.Registry, *Matchmaker) {
	t.Helper()
	reg := room.NewRegistry(config.Default(), store.NewMemoryStore())
	m := New(reg)
	t.Cleanup(func() {
		m.Stop()
		reg.Teardown()
	})
	return reg, m
}

func testClient(playerID, name string) *ws.Client {
	c := ws.NewClient(nil, nil, "sess-"+playerID)
	c.Stamp(playerID, name, room.RolePlayer)
	return c
}

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

func TestEnqueueValidation(t *testing.T) {
	_, m := testSetup(t)

	c := testClient("p1", "Ana")
	_, err := m.Enqueue(c, "3v3")
	assert.ErrorIs(t, err, ErrBadMode)

	position, err := m.Enqueue(c, Mode1v1)
	require.NoError(t, err)
	assert.Equal(t, 1, position)
	assert.Equal(t, ws.StateQueued, c.State())

	_, err = m.Enqueue(c, Mode2v2)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestCancel(t *testing.T) {
	_, m := testSetup(t)

	c := testClient("p1", "Ana")
	_, err := m.Cancel(c)
	assert.ErrorIs(t, err, ErrNotQueued)

	_, err = m.Enqueue(c, Mode2v2)
	require.NoError(t, err)

	mode, err := m.Cancel(c)
	require.NoError(t, err)
	assert.Equal(t, Mode2v2, mode)
	assert.Equal(t, ws.StateLobby, c.State())
	assert.Equal(t, 0, m.QueueLength(Mode2v2))
}

func TestFill1v1(t *testing.T) {
	reg, m := testSetup(t)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")

	_, err := m.Enqueue(c1, Mode1v1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.QueueLength(Mode1v1))

	_, err = m.Enqueue(c2, Mode1v1)
	require.NoError(t, err)
	assert.Equal(t, 0, m.QueueLength(Mode1v1), "the queue drains on fill")

	found := nextOfType(t, c1, ws.MsgMatchFound, time.Second)
	var payload ws.MatchFoundPayload
	require.NoError(t, json.Unmarshal(found.Payload, &payload))
	assert.Equal(t, Mode1v1, payload.Mode)
	assert.Equal(t, []string{"p1", "p2"}, payload.Players)

	r := reg.Get(payload.RoomID)
	require.NotNil(t, r)
	assert.Equal(t, room.VisibilityMatchmaking, r.Visibility)
	assert.Equal(t, room.PhasePlaying, r.CurrentPhase(), "matchmade games start immediately")
	assert.Equal(t, payload.RoomID, c1.RoomID())
	assert.Equal(t, payload.RoomID, c2.RoomID())

	nextOfType(t, c2, ws.MsgMatchFound, time.Second)
}

func TestFill2v2TeamsAlternateByQueueOrder(t *testing.T) {
	_, m := testSetup(t)

	clients := []*ws.Client{
		testClient("p1", "Ana"),
		testClient("p2", "Bo"),
		testClient("p3", "Cira"),
		testClient("p4", "Dan"),
	}
	for i, c := range clients[:3] {
		position, err := m.Enqueue(c, Mode2v2)
		require.NoError(t, err)
		assert.Equal(t, i+1, position)
	}
	assert.Equal(t, 3, m.QueueLength(Mode2v2))

	_, err := m.Enqueue(clients[3], Mode2v2)
	require.NoError(t, err)
	assert.Equal(t, 0, m.QueueLength(Mode2v2))

	nextOfType(t, clients[0], ws.MsgMatchFound, time.Second)

	snap := nextOfType(t, clients[0], ws.MsgGameState, time.Second)
	var state room.GameStatePayload
	require.NoError(t, json.Unmarshal(snap.Payload, &state))
	require.Len(t, state.Players, 4)

	teams := map[string]int{}
	for _, p := range state.Players {
		teams[p.ID] = p.Team
	}
	assert.Equal(t, teams["p1"], teams["p3"], "first and third in line are partners")
	assert.Equal(t, teams["p2"], teams["p4"], "second and fourth in line are partners")
	assert.NotEqual(t, teams["p1"], teams["p2"])
}

func TestDeadCohortMemberDissolvesHold(t *testing.T) {
	reg, m := testSetup(t)

	alive := testClient("p1", "Ana")
	dead := testClient("p2", "Bo")
	dead.Close()

	m.startMatch(Mode1v1, []*entry{
		{sess: alive, playerID: "p1", name: "Ana"},
		{sess: dead, playerID: "p2", name: "Bo"},
	})

	left := nextOfType(t, alive, ws.MsgQueueLeft, time.Second)
	var payload ws.QueueLeftPayload
	require.NoError(t, json.Unmarshal(left.Payload, &payload))
	assert.Equal(t, Mode1v1, payload.Mode)
	assert.Equal(t, "partner_disconnected", payload.Reason)

	assert.Equal(t, 1, m.QueueLength(Mode1v1), "the survivor returns to the head of the queue")
	assert.Equal(t, ws.StateQueued, alive.State())
	assert.Equal(t, 0, reg.Count(), "no room survives a dissolved hold")
}

func TestQueuesArePerMode(t *testing.T) {
	_, m := testSetup(t)

	c1 := testClient("p1", "Ana")
	c2 := testClient("p2", "Bo")
	_, err := m.Enqueue(c1, Mode1v1)
	require.NoError(t, err)
	_, err = m.Enqueue(c2, Mode2v2)
	require.NoError(t, err)

	assert.Equal(t, 1, m.QueueLength(Mode1v1))
	assert.Equal(t, 1, m.QueueLength(Mode2v2), "a 1v1 seeker never fills a 2v2 slot")
}
