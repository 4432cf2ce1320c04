package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studyhub-backend/internal/models"
)

// RedisPublisher pushes messages to the per-user channel the websocket hub
// subscribes to.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

func (p *RedisPublisher) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, userUpdatesChannel(userID), string(data)).Err()
}

func userUpdatesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// RedisSnapshotCache keeps the last published snapshot per user so a fresh
// instance can answer without recomputing.
type RedisSnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{redis: client, ttl: ttl}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, userID uuid.UUID) (*models.StudyStatsSnapshot, error) {
	data, err := c.redis.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap models.StudyStatsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt cached snapshot: %w", err)
	}
	return &snap, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, userID uuid.UUID, snap *models.StudyStatsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, snapshotKey(userID), data, c.ttl).Err()
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.redis.Del(ctx, snapshotKey(userID)).Err()
}

func snapshotKey(userID uuid.UUID) string {
	return "study_stats:" + userID.String()
}
