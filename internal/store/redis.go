package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zing-server/internal/game"
)

const (
	roomKeyPrefix   = "room:"
	eventsKeyPrefix = "events:"
	matchKeyPrefix  = "match:"
	roomTTL         = 24 * time.Hour
	matchTTL        = 30 * 24 * time.Hour
)

// RedisStore implements Store using Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store and verifies connectivity.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SaveRoomSnapshot saves the room summary.
func (s *RedisStore) SaveRoomSnapshot(ctx context.Context, snapshot *RoomSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal room snapshot: %w", err)
	}

	key := roomKeyPrefix + snapshot.ID
	if err := s.client.Set(ctx, key, data, roomTTL).Err(); err != nil {
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}
	return nil
}

// DeleteRoom removes the room snapshot and its event log.
func (s *RedisStore) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, roomKeyPrefix+roomID, eventsKeyPrefix+roomID).Err(); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

// AppendEvents appends serialized events to the room's log list.
func (s *RedisStore) AppendEvents(ctx context.Context, roomID string, events []game.Event) error {
	if len(events) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		values = append(values, data)
	}

	key := eventsKeyPrefix + roomID
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}
	return nil
}

// LoadEvents returns the full persisted event log for a room.
func (s *RedisStore) LoadEvents(ctx context.Context, roomID string) ([]game.Event, error) {
	raw, err := s.client.LRange(ctx, eventsKeyPrefix+roomID, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	events := make([]game.Event, 0, len(raw))
	for _, item := range raw {
		var ev game.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// SaveMatchResult persists a finished match.
func (s *RedisStore) SaveMatchResult(ctx context.Context, result *MatchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal match result: %w", err)
	}

	key := matchKeyPrefix + result.GameID
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, matchTTL)
	for _, p := range result.Players {
		playerKey := "player_matches:" + p.PlayerID
		pipe.LPush(ctx, playerKey, result.GameID)
		pipe.Expire(ctx, playerKey, matchTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save match result: %w", err)
	}
	return nil
}
