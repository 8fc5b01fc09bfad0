package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Redis Gate - spacing shared by every process using the same key
// =============================================================================

// acquireScript sets the key for interval ms if it is free, else returns the
// remaining ms.
var acquireScript = redis.NewScript(`
	local key = KEYS[1]
	local interval_ms = tonumber(ARGV[1])

	if redis.call('SET', key, '1', 'NX', 'PX', interval_ms) then
		return 0
	end
	local ttl = redis.call('PTTL', key)
	if ttl < 0 then
		return interval_ms
	end
	return ttl
`)

// RedisGate holds a Redis key for interval after each grant.
type RedisGate struct {
	redis    *redis.Client
	key      string
	interval time.Duration
	minPoll  time.Duration
}

// NewRedisGate creates a gate. A nil client makes every call pass.
func NewRedisGate(client *redis.Client, key string, interval time.Duration) *RedisGate {
	if key == "" {
		key = "guard:ratelimit:remote"
	}
	return &RedisGate{
		redis:    client,
		key:      key,
		interval: interval,
		minPoll:  5 * time.Millisecond,
	}
}

// TryAcquire attempts one grant. When refused it returns the time to wait.
// Redis errors allow the call.
func (g *RedisGate) TryAcquire(ctx context.Context) (bool, time.Duration) {
	if g.redis == nil || g.interval <= 0 {
		return true, 0
	}

	wait, err := acquireScript.Run(ctx, g.redis, []string{g.key}, g.interval.Milliseconds()).Int64()
	if err != nil {
		return true, 0
	}
	if wait <= 0 {
		return true, 0
	}
	return false, time.Duration(wait) * time.Millisecond
}

// Wait polls until a grant or ctx ends.
func (g *RedisGate) Wait(ctx context.Context) error {
	for {
		ok, wait := g.TryAcquire(ctx)
		if ok {
			return nil
		}
		if wait < g.minPoll {
			wait = g.minPoll
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return ErrWaitCancelled
		}
	}
}
