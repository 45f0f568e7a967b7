package store

import (
	"context"
	"time"

	"zing-server/internal/game"
)

// Store is the narrow persistence interface the realtime core writes
// through. All calls are fire-and-forget from the caller's perspective:
// failures are logged and gameplay continues from in-memory state.
type Store interface {
	SaveRoomSnapshot(ctx context.Context, snapshot *RoomSnapshot) error
	DeleteRoom(ctx context.Context, roomID string) error
	AppendEvents(ctx context.Context, roomID string, events []game.Event) error
	LoadEvents(ctx context.Context, roomID string) ([]game.Event, error)
	SaveMatchResult(ctx context.Context, result *MatchResult) error
	Close() error
}

// RoomSnapshot is the serializable room summary persisted opportunistically.
type RoomSnapshot struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	Visibility   string         `json:"visibility"`
	HostID       string         `json:"hostId"`
	Members      []MemberRecord `json:"members"`
	Phase        string         `json:"phase"`
	TimerEnabled bool           `json:"timerEnabled"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// MemberRecord is one member in a persisted snapshot.
type MemberRecord struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// MatchResult is written once on match_end.
type MatchResult struct {
	GameID      string          `json:"gameId"`
	RoomID      string          `json:"roomId"`
	Mode        string          `json:"mode"`
	WinnerTeam  int             `json:"winnerTeam"`
	FinalScores game.TeamPoints `json:"finalScores"`
	Players     []MemberRecord  `json:"players"`
	FinishedAt  time.Time       `json:"finishedAt"`
}
