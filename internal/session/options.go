package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Opts holds configuration for the session backends.
type Opts struct {
	RedisAddr string
	TTL       time.Duration
	LockTTL   time.Duration
}

// Option configures the session backends.
type Option func(*Opts)

// WithRedisAddr selects the Redis backends at addr (host:port, optional redis:// prefix).
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithTTL sets how long idle setup sessions are kept.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithLockTTL sets the Redis lock lease.
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.LockTTL = ttl }
}

// Backends bundles the Store and Locker selected by New.
type Backends struct {
	Store  Store
	Locker Locker
	close  func() error
}

// Close releases the Redis connection, if any.
func (b Backends) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// New builds memory backends, or Redis backends when WithRedisAddr is set.
// Redis is pinged once at startup.
func New(opts ...Option) (Backends, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := strings.TrimPrefix(strings.TrimSpace(cfg.RedisAddr), "redis://")
	if addr == "" {
		slog.Info("session.New: using in-memory session store and study locks")
		return Backends{Store: NewMemoryStore(cfg.TTL), Locker: NewMemoryLocker()}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return Backends{}, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("session.New: using Redis session store and study locks", "addr", addr)
	return Backends{
		Store:  NewRedisStore(rdb, cfg.TTL),
		Locker: NewRedisLocker(rdb, cfg.LockTTL, 0),
		close:  rdb.Close,
	}, nil
}
