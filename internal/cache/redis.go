package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("invalid REDIS_ADDR: %s", addr)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unexpected error while pinging redis: %w", err)
	}

	log.Info().Str("addr", addr).Int("db", db).Msg("redis connection established")
	return client, nil
}

// RedisCounter is a Counter shared across processes. Keys are namespaced by
// Prefix.
type RedisCounter struct {
	Client redis.Cmdable
	Prefix string
}

// NewRedisCounter wraps client. An empty prefix defaults to "ratelimit:".
func NewRedisCounter(client redis.Cmdable, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisCounter{Client: client, Prefix: prefix}
}

// Incr implements Counter with INCR, PEXPIRE on the first hit and PTTL.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := r.Prefix + key

	n, err := r.Client.Incr(ctx, k).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := r.Client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis pexpire: %w", err)
		}
		return n, window, nil
	}

	ttl, err := r.Client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl < 0 {
		// The key lost its expiry (e.g. a crash between INCR and PEXPIRE).
		if err := r.Client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis pexpire: %w", err)
		}
		ttl = window
	}
	return n, ttl, nil
}
