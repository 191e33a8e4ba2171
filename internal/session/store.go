package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

// SnapshotStore хранит снимки сессий вне процесса.
// Load возвращает models.ErrSessionNotFound, если снимка нет.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// NoopStore не хранит ничего. Используется, когда REDIS_ADDR не задан.
type NoopStore struct{}

func (NoopStore) Save(context.Context, Snapshot, time.Duration) error { return nil }

func (NoopStore) Load(context.Context, string) (Snapshot, error) {
	return Snapshot{}, models.ErrSessionNotFound
}

func (NoopStore) Delete(context.Context, string) error { return nil }

var (
	_ SnapshotStore = NoopStore{}
	_ SnapshotStore = (*redisStore)(nil)
)

type redisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore создает хранилище снимков в Redis.
func NewRedisStore(client *redis.Client, logger *zap.Logger) SnapshotStore {
	return &redisStore{
		client: client,
		logger: logger.Named("RedisSessionStore"),
	}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("cinegenius:session:%s", sessionID)
}

func (r *redisStore) Save(ctx context.Context, snap Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	key := snapshotKey(snap.SessionID)
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		r.logger.Error("Failed to save session snapshot", zap.String("sessionID", snap.SessionID), zap.Error(err))
		return fmt.Errorf("failed to save session snapshot in redis: %w", err)
	}
	r.logger.Debug("Session snapshot saved", zap.String("key", key), zap.Int("bytes", len(data)), zap.Duration("ttl", ttl))
	return nil
}

func (r *redisStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to load session snapshot", zap.String("sessionID", sessionID), zap.Error(err))
		return Snapshot{}, fmt.Errorf("failed to load session snapshot from redis: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return snap, nil
}

func (r *redisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, snapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session snapshot from redis: %w", err)
	}
	return nil
}
