package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of a shared Redis server.  This is
// the production backend: SETNX gives the cross-process mutual-exclusion
// primitive and a MULTI/EXEC pipeline gives the atomic store-and-clear.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an established Redis client.  The client must be
// non-nil; callers that failed to connect should fall back to NewMemoryStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoKey
	}
	return v, err
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) StoreAndClear(ctx context.Context, key, value string, ttl time.Duration, clear ...string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	if len(clear) > 0 {
		pipe.Del(ctx, clear...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
