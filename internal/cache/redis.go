package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptotracker/core/internal/logger"
)

// Redis is a Store backed by a Redis server. A cache outage must not
// crash request handling, so every backend error degrades to a miss on
// Get and is logged and dropped on Set.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a Redis store and pings the server. A ping failure
// is returned so the caller can decide whether to fall back, but the
// returned store is still usable: it will simply miss until the server
// comes back.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	r := &Redis{rdb: rdb}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return r, err
	}
	return r, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, ns string, parts ...string) ([]byte, bool) {
	key := Key(ns, parts...)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Cache get failed for %s, treating as miss: %v", key, err)
		}
		return nil, false
	}
	return b, true
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, ns string, value []byte, ttl time.Duration, parts ...string) {
	if ttl <= 0 {
		return
	}
	key := Key(ns, parts...)
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Warn("Cache set failed for %s: %v", key, err)
	}
}

// Ping reports cache backend health.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
