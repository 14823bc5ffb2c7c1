// Package ratelimit provides a fixed-window request limiter shared across replicas through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter limits calls per key in a fixed time window. With a Redis client the
// counters are shared across processes; without one they live in process memory.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	redisClient *redis.Client
	redisPrefix string

	mu     sync.Mutex
	local  map[string]int
	slotAt int64
}

// NewFixedWindowLimiter creates a limiter. A nil client selects the in-process mode.
func NewFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cybervantage:ratelimit"
	}
	return &FixedWindowLimiter{
		limit:       limit,
		window:      window,
		now:         time.Now,
		redisClient: client,
		redisPrefix: prefix,
		local:       make(map[string]int),
	}, nil
}

// Limit returns the configured calls per window.
func (l *FixedWindowLimiter) Limit() int {
	if l == nil {
		return 0
	}
	return l.limit
}

// Allow returns true when the key is within quota. Redis failures fail closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	if l.redisClient == nil {
		return l.allowLocal(key, slot)
	}
	return l.allowRedis(ctx, key, slot)
}

func (l *FixedWindowLimiter) allowRedis(ctx context.Context, key string, slot int64) bool {
	redisKey := fmt.Sprintf("%s:%s:%d", l.redisPrefix, key, slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.redisClient, []string{redisKey}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false
	}
	return res <= int64(l.limit)
}

func (l *FixedWindowLimiter) allowLocal(key string, slot int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.slotAt {
		l.local = make(map[string]int)
		l.slotAt = slot
	}
	l.local[key]++
	return l.local[key] <= l.limit
}
