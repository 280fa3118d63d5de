package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/squadevents/rsvp-engine/internal/hint"
)

// HintStore keeps the short-TTL "just joined" memos. Redis expires the keys
// server-side; the stored timestamp is re-checked against the TTL rule anyway
// so a replica with lagging expiry cannot resurrect a stale hint.
type HintStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewHintStore(client *redis.Client, ttl time.Duration) *HintStore {
	return &HintStore{client: client, ttl: ttl}
}

func hintKey(actorID, eventID uuid.UUID) string {
	return "hint:joined:" + actorID.String() + ":" + eventID.String()
}

func (s *HintStore) MarkJoined(ctx context.Context, actorID, eventID uuid.UUID) error {
	now := time.Now().UTC()
	return s.client.Set(ctx, hintKey(actorID, eventID), now.Format(time.RFC3339Nano), s.ttl).Err()
}

func (s *HintStore) RecentlyJoined(ctx context.Context, actorID, eventID uuid.UUID) (bool, error) {
	val, err := s.client.Get(ctx, hintKey(actorID, eventID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	recordedAt, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return false, nil
	}
	return hint.Valid(recordedAt, time.Now().UTC(), s.ttl), nil
}

func (s *HintStore) Clear(ctx context.Context, actorID, eventID uuid.UUID) error {
	return s.client.Del(ctx, hintKey(actorID, eventID)).Err()
}
