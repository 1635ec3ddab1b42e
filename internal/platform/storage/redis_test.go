package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisSnapshot) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisSnapshot(client, DefaultKey)
}

func TestRedisSnapshot(t *testing.T) {
	_, s := setupTestRedis(t)
	exerciseSnapshot(t, s)
}

func TestRedisSnapshot_Concurrent(t *testing.T) {
	_, s := setupTestRedis(t)
	exerciseConcurrentUpdates(t, s, 5)
}

func TestRedisSnapshot_UsesWellKnownKey(t *testing.T) {
	mr, s := setupTestRedis(t)

	err := s.Update(context.Background(), func([]byte) ([]byte, error) {
		return []byte(`[]`), nil
	})
	require.NoError(t, err)

	got, err := mr.Get(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)
}

func TestRedisSnapshot_ServerDown(t *testing.T) {
	mr, s := setupTestRedis(t)
	mr.Close()

	_, err := s.Read(context.Background())
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}

func TestDialRedis_BadURL(t *testing.T) {
	_, err := DialRedis(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()).Err())
}
