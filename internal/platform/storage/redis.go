package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisMaxRetries = 50

// RedisSnapshot keeps the blob under one Redis key. Updates use WATCH/MULTI
// and are retried when another writer touched the key in between.
type RedisSnapshot struct {
	c   *redis.Client
	key string
}

func NewRedisSnapshot(c *redis.Client, key string) *RedisSnapshot {
	return &RedisSnapshot{c: c, key: key}
}

// DialRedis parses a redis:// URL and verifies the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (r *RedisSnapshot) Name() string { return "redis" }

func (r *RedisSnapshot) Read(ctx context.Context) ([]byte, error) {
	b, err := r.c.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *RedisSnapshot) Update(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, r.key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := r.c.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *RedisSnapshot) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *RedisSnapshot) Close(ctx context.Context) error {
	return r.c.Close()
}
