package synccache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV on Redis. Entries are given a generous expiry (twice
// the sync window) purely as garbage collection; staleness decisions belong
// to the Cache.
type RedisKV struct {
	client *redis.Client
	expiry time.Duration
}

func NewRedisKV(client *redis.Client, window time.Duration) *RedisKV {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisKV{client: client, expiry: 2 * window}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, r.expiry).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
