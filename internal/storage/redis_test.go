package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisFromClient(client), mr
}

func TestRedisClient_IncrAndExpire(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	n, err := rc.Incr(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = rc.Incr(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, rc.Expire(ctx, "counter", time.Hour))
	require.Equal(t, time.Hour, mr.TTL("counter"))

	mr.FastForward(time.Hour)
	count, err := rc.Count(ctx, "counter")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRedisClient_CountMissingKey(t *testing.T) {
	rc, _ := newTestRedis(t)

	count, err := rc.Count(context.Background(), "missing")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRedisClient_GetSetDel(t *testing.T) {
	rc, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := rc.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, rc.Set(ctx, "k", "v", time.Minute))
	val, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", val)

	require.NoError(t, rc.Del(ctx, "k"))
	_, err = rc.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisClient_ErrorsWhenServerDown(t *testing.T) {
	rc, mr := newTestRedis(t)
	mr.Close()

	_, err := rc.Incr(context.Background(), "counter")
	require.Error(t, err)
	require.Error(t, rc.Ping(context.Background()))
}
