package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	err = client.Ping(context.Background()).Err()
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return mr, client, cleanup
}

func TestRedisStore_IncrExpire(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client)
	ctx := context.Background()

	count, err := store.Incr(ctx, "rate-limit:/api/events:10.0.0.1:1700000040")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Incr(ctx, "rate-limit:/api/events:10.0.0.1:1700000040")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.Expire(ctx, "rate-limit:/api/events:10.0.0.1:1700000040", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("rate-limit:/api/events:10.0.0.1:1700000040"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("rate-limit:/api/events:10.0.0.1:1700000040"))
}

func TestRedisStore_GetSet(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	store := NewRedisStore(client)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "tokens", 48.75, 30*time.Second))

	value, found, err := store.Get(ctx, "tokens")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 48.75, value)
	assert.Equal(t, 30*time.Second, mr.TTL("tokens"))

	raw, err := mr.Get("tokens")
	require.NoError(t, err)
	assert.Equal(t, "48.75", raw)
}

func TestRedisStore_MalformedValue(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set("tokens", "not-a-number"))

	_, _, err := NewRedisStore(client).Get(context.Background(), "tokens")
	assert.Error(t, err)
}

func TestLimiter_WithRedisStore(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter, err := NewLimiter(NewRedisStore(client), Config{Interval: time.Minute, Limit: 2}, WithClock(func() time.Time { return windowStart }))
	require.NoError(t, err)
	req := Request{Path: "/api/families", ClientAddress: "192.168.1.1"}

	first := limiter.Check(context.Background(), req)
	assert.Equal(t, StatusAllowed, first.Status)
	assert.Equal(t, 1, first.Info.Remaining)

	windowKey := "rate-limit:/api/families:192.168.1.1:1700000040"
	assert.Equal(t, time.Minute, mr.TTL(windowKey))
	assert.Equal(t, time.Minute, mr.TTL("rate-limit:/api/families:192.168.1.1:tokens"))

	second := limiter.Check(context.Background(), req)
	assert.Equal(t, StatusAllowed, second.Status)
	assert.Equal(t, 0, second.Info.Remaining)

	third := limiter.Check(context.Background(), req)
	assert.Equal(t, StatusDenied, third.Status)

	count, err := mr.Get(windowKey)
	require.NoError(t, err)
	assert.Equal(t, "3", count)
}

func TestLimiter_WithRedisStore_ServerDown(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter, err := NewLimiter(NewRedisStore(client), DefaultConfig(), WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	mr.Close()

	for i := 0; i < 3; i++ {
		result := limiter.Check(context.Background(), Request{Path: "/api/events", ClientAddress: "192.168.1.2"})
		assert.Equal(t, StatusDisabled, result.Status)
		assert.Error(t, result.Err)
	}
}

func TestLimiter_WithRedisStore_DifferentClients(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter, err := NewLimiter(NewRedisStore(client), Config{Limit: 1}, WithClock(func() time.Time { return windowStart }))
	require.NoError(t, err)

	client1 := Request{Path: "/api/events", ClientAddress: "192.168.1.3"}
	client2 := Request{Path: "/api/events", ClientAddress: "192.168.1.4"}

	assert.Equal(t, StatusAllowed, limiter.Check(context.Background(), client1).Status)
	assert.Equal(t, StatusDenied, limiter.Check(context.Background(), client1).Status)
	assert.Equal(t, StatusAllowed, limiter.Check(context.Background(), client2).Status)
}
