package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"SupportChat/internal/session"
)

// RedisStore keeps the log as a single string key
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to addr and checks the connection
func NewRedisStore(ctx context.Context, addr, key string) (*RedisStore, error) {
	rdb := redis.NewClient(
		&redis.Options{
			Addr: addr,
		},
	)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return NewRedisStoreWithClient(rdb, key), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(rdb *redis.Client, key string) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		key: key,
	}
}

func (r *RedisStore) Load(ctx context.Context) (session.Log, error) {
	raw, err := r.rdb.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.Log{}, nil
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", r.key, err)
	}
	return decodeLog([]byte(raw))
}

func (r *RedisStore) Save(ctx context.Context, log session.Log) error {
	raw, err := encodeLog(log)
	if err != nil {
		return err
	}
	if err = r.rdb.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to remove conversation %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
