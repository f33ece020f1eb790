// Package ratelimit throttles job submissions per caller.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"htmlpdf-service/internal/apperr"
)

const keyPrefix = "pdf:ratelimit:"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining float64
}

// TokenBucket is a Redis-backed token bucket shared by every API replica.
type TokenBucket struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenBucket constructs a bucket with the provided capacity/refill.
// Idle buckets are dropped after ttl.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucket{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes a token from caller's bucket if one is available.
func (b *TokenBucket) Allow(ctx context.Context, caller string) (Decision, error) {
	res, err := bucketScript.Run(ctx, b.client, []string{keyPrefix + caller},
		b.capacity, b.refill, b.now().UnixMilli(), b.ttl.Milliseconds()).Result()
	if err != nil {
		return Decision{}, apperr.Infrastructure(err, "rate limiter")
	}
	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return Decision{}, apperr.Infrastructure(nil, "unexpected rate limiter reply %T", res)
	}
	allowed, _ := arr[0].(int64)
	// Lua numbers are truncated to integers on the way out, so tokens come back as a string.
	remainingStr, _ := arr[1].(string)
	remaining, _ := strconv.ParseFloat(remainingStr, 64)
	return Decision{Allowed: allowed == 1, Remaining: remaining}, nil
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
tokens = math.min(capacity, tokens + delta / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_ms', tostring(now))
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tostring(tokens)}
`)
