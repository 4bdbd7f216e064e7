package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-engine/pkg/state"
)

// RedisStorage implements Storage on top of a shared Redis connection.
// NPC state does not expire.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage wraps an existing client. Close closes that client.
func NewRedisStorage(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// NPC state operations

func (r *RedisStorage) SaveNPCState(ctx context.Context, npcID string, s *state.NPCState) error {
	s.UpdatedAt = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		r.logger.Error("Failed to marshal NPC state", "npc_id", npcID, "error", err)
		return fmt.Errorf("failed to marshal NPC state: %w", err)
	}

	if err := r.client.Set(ctx, npcStateKey(npcID), string(data), 0).Err(); err != nil {
		r.logger.Error("Failed to save NPC state", "npc_id", npcID, "error", err)
		return fmt.Errorf("failed to save NPC state: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadNPCState(ctx context.Context, npcID string) (*state.NPCState, error) {
	data, err := r.client.Get(ctx, npcStateKey(npcID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("NPC state not found", "npc_id", npcID)
			return nil, nil
		}
		r.logger.Error("Failed to load NPC state", "npc_id", npcID, "error", err)
		return nil, fmt.Errorf("failed to load NPC state: %w", err)
	}
	if data == "" {
		return nil, nil
	}

	var s state.NPCState
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		r.logger.Error("Failed to unmarshal NPC state", "npc_id", npcID, "error", err)
		return nil, fmt.Errorf("failed to unmarshal NPC state: %w", err)
	}
	return &s, nil
}

func (r *RedisStorage) DeleteNPCState(ctx context.Context, npcID string) error {
	if err := r.client.Del(ctx, npcStateKey(npcID)).Err(); err != nil {
		r.logger.Error("Failed to delete NPC state", "npc_id", npcID, "error", err)
		return fmt.Errorf("failed to delete NPC state: %w", err)
	}
	return nil
}
