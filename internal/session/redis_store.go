package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

const sessionKeyPrefix = "studypipe:session:"

// RedisStore keeps each setup session as a JSON value with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive ttl takes DefaultSessionTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (models.SetupSession, error) {
	data, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SetupSession{}, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("RedisStore.Get: GET failed", "sessionID", id, "error", err)
		return models.SetupSession{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var s models.SetupSession
	if err := json.Unmarshal(data, &s); err != nil {
		return models.SetupSession{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, s models.SetupSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	if err := r.rdb.Set(ctx, sessionKeyPrefix+s.ID, data, r.ttl).Err(); err != nil {
		slog.Error("RedisStore.Save: SET failed", "sessionID", s.ID, "error", err)
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}
