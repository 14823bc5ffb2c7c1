package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func fixedClock(l *FixedWindowLimiter, at time.Time) {
	l.now = func() time.Time { return at }
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	require.NoError(t, err)
	start := time.Date(2025, 8, 1, 10, 0, 5, 0, time.UTC)
	fixedClock(limiter, start)

	ctx := context.Background()
	require.True(t, limiter.Allow(ctx, "ai"))
	require.True(t, limiter.Allow(ctx, "ai"))
	require.False(t, limiter.Allow(ctx, "ai"))
	require.True(t, limiter.Allow(ctx, "other"))

	fixedClock(limiter, start.Add(time.Minute))
	require.True(t, limiter.Allow(ctx, "ai"))
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Second)
	require.NoError(t, err)
	server.Close()
	require.False(t, limiter.Allow(context.Background(), "ai"))
}

func TestFixedWindowLimiterLocal(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(nil, "", 1, time.Minute)
	require.NoError(t, err)
	start := time.Date(2025, 8, 1, 10, 0, 5, 0, time.UTC)
	fixedClock(limiter, start)

	ctx := context.Background()
	require.True(t, limiter.Allow(ctx, "ai"))
	require.False(t, limiter.Allow(ctx, "ai"))

	fixedClock(limiter, start.Add(time.Minute))
	require.True(t, limiter.Allow(ctx, "ai"))
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	_, err := NewFixedWindowLimiter(nil, "", 0, time.Second)
	require.Error(t, err)

	var nilLimiter *FixedWindowLimiter
	require.True(t, nilLimiter.Allow(context.Background(), "x"))
}
