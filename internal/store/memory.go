package store

import (
	"context"
	"sync"

	"zing-server/internal/game"
)

// MemoryStore implements Store using in-memory maps (for testing and
// deployments without Redis).
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string]*RoomSnapshot
	events  map[string][]game.Event
	matches map[string]*MatchResult
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]*RoomSnapshot),
		events:  make(map[string][]game.Event),
		matches: make(map[string]*MatchResult),
	}
}

func (s *MemoryStore) SaveRoomSnapshot(ctx context.Context, snapshot *RoomSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[snapshot.ID] = snapshot
	return nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	delete(s.events, roomID)
	return nil
}

func (s *MemoryStore) AppendEvents(ctx context.Context, roomID string, events []game.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[roomID] = append(s.events[roomID], events...)
	return nil
}

func (s *MemoryStore) LoadEvents(ctx context.Context, roomID string) ([]game.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]game.Event(nil), s.events[roomID]...), nil
}

func (s *MemoryStore) SaveMatchResult(ctx context.Context, result *MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[result.GameID] = result
	return nil
}

// MatchResult returns a stored result; used by tests.
func (s *MemoryStore) MatchResult(gameID string) *MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[gameID]
}

func (s *MemoryStore) Close() error {
	return nil
}
