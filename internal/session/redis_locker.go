package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/StudyPipe/internal/util"
)

const (
	// DefaultLockTTL bounds how long a crashed holder can block a study. It exceeds
	// the worst-case turn (three 120s attempts plus backoff).
	DefaultLockTTL = 10 * time.Minute
	// DefaultLockPollInterval is the delay between SET NX attempts while waiting.
	DefaultLockPollInterval = 50 * time.Millisecond

	lockKeyPrefix = "studypipe:lock:"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every StudyPipe instance using the same Redis.
type RedisLocker struct {
	rdb          *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisLocker creates a RedisLocker. Non-positive durations take the defaults.
func NewRedisLocker(rdb *redis.Client, ttl, pollInterval time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if pollInterval <= 0 {
		pollInterval = DefaultLockPollInterval
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, pollInterval: pollInterval}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := util.GenerateLockToken()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			slog.Error("RedisLocker.Acquire: SETNX failed", "key", key, "error", err)
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			slog.Debug("RedisLocker.Acquire: lock acquired", "key", key)
			return func() { l.release(redisKey, token) }, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Int()
	if err != nil {
		slog.Error("RedisLocker.release: release failed", "key", redisKey, "error", err)
		return
	}
	if n == 0 {
		slog.Warn("RedisLocker.release: lock expired before release", "key", redisKey)
	}
}
