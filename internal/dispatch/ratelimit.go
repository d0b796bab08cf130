package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for an atomic check-and-increment on the per-minute outbound
// counter. Checking before incrementing in separate commands would let two
// workers both pass the check.
const outboundLimitScript = `
local key = ARGV[1] .. ":" .. ARGV[2]
local limit = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, 120)
end
return {1, newVal}
`

// GlobalLimiter caps total outbound sends per minute across all campaigns
// and all worker processes, so concurrent campaigns cannot trip provider
// throttling together.
type GlobalLimiter struct {
	rdb       *redis.Client
	script    *redis.Script
	perMinute int
}

func NewGlobalLimiter(rdb *redis.Client, perMinute int) *GlobalLimiter {
	return &GlobalLimiter{
		rdb:       rdb,
		script:    redis.NewScript(outboundLimitScript),
		perMinute: perMinute,
	}
}

// Allow atomically reserves one send in the current minute window.
func (l *GlobalLimiter) Allow(ctx context.Context) (bool, error) {
	window := time.Now().Unix() / 60
	res, err := l.script.Run(ctx, l.rdb, []string{},
		"phishsim:outbound:minute", fmt.Sprintf("%d", window), l.perMinute).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 1 {
		return false, fmt.Errorf("unexpected rate limit reply: %v", res)
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}

// Wait blocks until a send slot is available or the context is done.
func (l *GlobalLimiter) Wait(ctx context.Context) error {
	for {
		ok, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
