package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s := NewStore(ttl)
	t.Cleanup(s.Stop)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := testStore(t, time.Minute)

	inv, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, StatusPending, inv.Status)
	assert.True(t, inv.ExpiresAt.After(inv.CreatedAt))

	got, err := s.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv, got)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsSelfAndDuplicates(t *testing.T) {
	s := testStore(t, time.Minute)

	_, err := s.Create("alice", "Alice", "alice", "room-1")
	assert.ErrorIs(t, err, ErrSelfInvite)

	_, err = s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)
	_, err = s.Create("alice", "Alice", "bob", "room-1")
	assert.ErrorIs(t, err, ErrDuplicate)

	// A different room is a different invite.
	_, err = s.Create("alice", "Alice", "bob", "room-2")
	assert.NoError(t, err)
}

func TestAcceptDecline(t *testing.T) {
	s := testStore(t, time.Minute)

	inv, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)

	_, err = s.Accept(inv.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotRecipient)

	accepted, err := s.Accept(inv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)

	_, err = s.Accept(inv.ID, "bob")
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = s.Decline(inv.ID, "bob")
	assert.ErrorIs(t, err, ErrNotPending)

	second, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)
	declined, err := s.Decline(second.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, declined.Status)
}

func TestExpiry(t *testing.T) {
	s := testStore(t, time.Millisecond)

	inv, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = s.Accept(inv.ID, "bob")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Empty(t, s.PendingFor("bob"))
}

func TestPendingFor(t *testing.T) {
	s := testStore(t, time.Minute)

	_, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)
	_, err = s.Create("carol", "Carol", "bob", "room-2")
	require.NoError(t, err)
	_, err = s.Create("alice", "Alice", "dave", "room-1")
	require.NoError(t, err)

	assert.Len(t, s.PendingFor("bob"), 2)
	assert.Len(t, s.PendingFor("dave"), 1)
	assert.Empty(t, s.PendingFor("alice"))
}

func TestCancelForRoom(t *testing.T) {
	s := testStore(t, time.Minute)

	a, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)
	_, err = s.Create("alice", "Alice", "dave", "room-1")
	require.NoError(t, err)
	other, err := s.Create("carol", "Carol", "bob", "room-2")
	require.NoError(t, err)

	cancelled := s.CancelForRoom("room-1")
	assert.Len(t, cancelled, 2)
	for _, inv := range cancelled {
		assert.Equal(t, StatusCancelled, inv.Status)
	}

	got, err := s.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	untouched, err := s.Get(other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, untouched.Status)
}

func TestSweepDropsStaleInvites(t *testing.T) {
	s := testStore(t, time.Millisecond)

	inv, err := s.Create("alice", "Alice", "bob", "room-1")
	require.NoError(t, err)

	s.sweep(time.Now().Add(time.Second))

	_, err = s.Get(inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
