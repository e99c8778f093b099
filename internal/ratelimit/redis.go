package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for the signup window.
// Checks before incrementing so denied requests never consume budget; the
// window expiry is set on the first hit only.
const signupWindowLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    local ttl = redis.call("PTTL", key)
    if ttl < 0 then
        redis.call("PEXPIRE", key, windowMs)
        ttl = windowMs
    end
    return {0, current, ttl}  -- denied
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("PEXPIRE", key, windowMs)
end

return {1, newVal, redis.call("PTTL", key)}  -- allowed
`

// RedisLimiter keeps one counter per identifier under "ratelimit:signup:{id}".
type RedisLimiter struct {
	redis  *redis.Client
	cfg    Config
	script *redis.Script
}

// NewRedisLimiter creates a limiter with a pre-compiled Lua script.
func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		cfg:    cfg.withDefaults(),
		script: redis.NewScript(signupWindowLuaScript),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, id string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:signup:%s", id)
	result, err := l.script.Run(ctx, l.redis, []string{key}, l.cfg.Limit, l.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("signup rate limit script: %w", err)
	}
	if len(result) != 3 {
		return Decision{}, fmt.Errorf("signup rate limit script: unexpected result %v", result)
	}

	allowed, count, ttlMs := result[0] == 1, int(result[1]), result[2]
	d := Decision{Allowed: allowed, Remaining: l.cfg.Limit - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !allowed {
		d.RetryAfter = time.Duration(ttlMs) * time.Millisecond
	}
	return d, nil
}
