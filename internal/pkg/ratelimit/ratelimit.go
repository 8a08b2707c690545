// Package ratelimit caps calls to the provider API at a per-minute budget,
// either across instances (Redis) or within one process.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter blocks until one more call fits in the budget.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Unlimited never blocks. Used when rate limiting is disabled.
type Unlimited struct{}

// Wait returns ctx.Err() and otherwise nothing.
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// Local is an in-process token bucket refilled at perMinute/60 per second.
type Local struct {
	limiter *rate.Limiter
}

// NewLocal creates a token bucket allowing perMinute calls per minute
// with a burst of the full minute's budget.
func NewLocal(perMinute int) *Local {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Local{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)}
}

// Wait blocks until a token is available.
func (l *Local) Wait(ctx context.Context) error { return l.limiter.Wait(ctx) }

// Fixed one-minute window. The counter is only incremented when the call
// fits, so denied callers don't eat into the next attempt.
const windowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")

if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// Redis is a per-minute counter shared by every instance using the same name.
type Redis struct {
	client    *redis.Client
	name      string
	perMinute int
	script    *redis.Script
	now       func() time.Time
}

// NewRedis creates a shared limiter. name scopes the counter keys.
func NewRedis(client *redis.Client, name string, perMinute int) *Redis {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Redis{
		client:    client,
		name:      name,
		perMinute: perMinute,
		script:    redis.NewScript(windowLuaScript),
		now:       time.Now,
	}
}

// Allow atomically checks and increments the current window. When denied
// it returns how long until the window rolls over.
func (r *Redis) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := r.now()
	key := fmt.Sprintf("ratelimit:%s:min:%d", r.name, now.Unix()/60)

	result, err := r.script.Run(ctx, r.client, []string{key}, r.perMinute, 120).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if result[0].(int64) == 1 {
		return true, 0, nil
	}
	return false, time.Duration(60-now.Second()) * time.Second, nil
}

// Wait polls Allow until the call fits or ctx is done.
func (r *Redis) Wait(ctx context.Context) error {
	for {
		ok, wait, err := r.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
