package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKVRepository stores snapshots as plain Redis strings.
type RedisKVRepository struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisKVRepository creates a new RedisKVRepository. Keys are namespaced
// with prefix so the store can share a Redis database.
func NewRedisKVRepository(rdb *redis.Client, prefix string) *RedisKVRepository {
	return &RedisKVRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisKVRepository) key(k string) string {
	return r.prefix + k
}

// GetItem reads a value by key.
func (r *RedisKVRepository) GetItem(ctx context.Context, key string) (string, error) {
	val, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// SetItem overwrites the value in full. Snapshots never expire on their own;
// expiry is decided by the reader against the session start time.
func (r *RedisKVRepository) SetItem(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// RemoveItem deletes the key. Missing keys are not an error.
func (r *RedisKVRepository) RemoveItem(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
