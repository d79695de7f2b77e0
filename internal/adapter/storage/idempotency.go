package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

type RedisIdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = idempotencyKeyTTL
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (r *RedisIdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
