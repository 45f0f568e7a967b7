package invite

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is an invite lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

const sweepInterval = 30 * time.Second

// InviteError is a sentinel error type for the invite package.
type InviteError string

func (e InviteError) Error() string { return string(e) }

const (
	ErrNotFound     InviteError = "invite not found"
	ErrNotRecipient InviteError = "invite addressed to someone else"
	ErrNotPending   InviteError = "invite is no longer pending"
	ErrExpired      InviteError = "invite has expired"
	ErrDuplicate    InviteError = "a pending invite to this player already exists"
	ErrSelfInvite   InviteError = "cannot invite yourself"
)

// Invite is one room invitation from a player to a friend.
type Invite struct {
	ID        string    `json:"id"`
	FromID    string    `json:"fromId"`
	FromName  string    `json:"fromName"`
	ToID      string    `json:"toId"`
	RoomID    string    `json:"roomId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (inv *Invite) clone() *Invite {
	out := *inv
	return &out
}

// Store holds live invites in memory. Invites are short-lived by design;
// a server restart dropping them is acceptable.
type Store struct {
	mu      sync.Mutex
	invites map[string]*Invite
	ttl     time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates an invite store and starts its expiry sweeper.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		invites: make(map[string]*Invite),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Stop halts the expiry sweeper.
func (s *Store) Stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Create registers a pending invite. At most one pending invite may
// exist per sender/recipient/room triple.
func (s *Store) Create(fromID, fromName, toID, roomID string) (*Invite, error) {
	if fromID == toID {
		return nil, ErrSelfInvite
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, inv := range s.invites {
		if inv.Status == StatusPending && inv.FromID == fromID &&
			inv.ToID == toID && inv.RoomID == roomID && now.Before(inv.ExpiresAt) {
			return nil, ErrDuplicate
		}
	}

	inv := &Invite{
		ID:        uuid.NewString(),
		FromID:    fromID,
		FromName:  fromName,
		ToID:      toID,
		RoomID:    roomID,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.invites[inv.ID] = inv
	return inv.clone(), nil
}

// Get returns an invite by id.
func (s *Store) Get(id string) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inv.clone(), nil
}

// PendingFor lists a recipient's live pending invites.
func (s *Store) PendingFor(toID string) []*Invite {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []*Invite
	for _, inv := range s.invites {
		if inv.Status == StatusPending && inv.ToID == toID && now.Before(inv.ExpiresAt) {
			out = append(out, inv.clone())
		}
	}
	return out
}

// Accept resolves a pending invite in the recipient's favor.
func (s *Store) Accept(id, toID string) (*Invite, error) {
	return s.resolve(id, toID, StatusAccepted)
}

// Decline resolves a pending invite against the sender.
func (s *Store) Decline(id, toID string) (*Invite, error) {
	return s.resolve(id, toID, StatusDeclined)
}

func (s *Store) resolve(id, toID string, status Status) (*Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.ToID != toID {
		return nil, ErrNotRecipient
	}
	if inv.Status != StatusPending {
		return nil, ErrNotPending
	}
	if time.Now().After(inv.ExpiresAt) {
		inv.Status = StatusExpired
		return nil, ErrExpired
	}

	inv.Status = status
	return inv.clone(), nil
}

// CancelForRoom cancels every pending invite into a destroyed room and
// returns them so callers can notify the recipients.
func (s *Store) CancelForRoom(roomID string) []*Invite {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []*Invite
	for _, inv := range s.invites {
		if inv.Status == StatusPending && inv.RoomID == roomID {
			inv.Status = StatusCancelled
			cancelled = append(cancelled, inv.clone())
		}
	}
	return cancelled
}

// sweepLoop marks overdue pending invites expired and drops resolved
// ones once they are stale enough to be unreferenced.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, inv := range s.invites {
		if inv.Status == StatusPending && now.After(inv.ExpiresAt) {
			inv.Status = StatusExpired
		}
		if inv.Status != StatusPending && now.Sub(inv.ExpiresAt) > s.ttl {
			delete(s.invites, id)
		}
	}
}
