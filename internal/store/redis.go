package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
)

type redisSetter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis stores each key as a string under <prefix><key>, optionally with a TTL.
type Redis struct {
	rdb    redisSetter
	closer func() error
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings the server, failing after 2s.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{rdb: rdb, closer: rdb.Close, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (r *Redis) SetValue(ctx context.Context, key string, value []byte, _ string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
