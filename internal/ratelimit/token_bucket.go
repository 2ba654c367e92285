package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Bucket state lives in a hash of milli-tokens so fractional refills survive
// the trip through Lua's integer replies. The script answers with
// {allowed, remaining_milli, retry_after_ms, now_ms}.
const bucketScript = `
-- tokens per second is the same number as milli-tokens per millisecond
local per_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local level = tonumber(redis.call("HGET", KEYS[1], "level"))
local seen = tonumber(redis.call("HGET", KEYS[1], "seen"))
if level == nil or seen == nil then
  level = capacity
else
  local idle = math.max(0, now - seen)
  level = math.min(capacity, level + idle * per_ms)
end

local allowed = 0
local wait = 0
if level >= 1000 then
  allowed = 1
  level = level - 1000
else
  wait = math.ceil((1000 - level) / per_ms)
end

redis.call("HSET", KEYS[1], "level", level, "seen", now)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return {allowed, math.floor(level), wait, now}
`

var (
	errBucketUnavailable = errors.New("rate limiter not configured")
	errBucketArgs        = errors.New("rate limiter needs a key, positive rate and positive burst")
)

// RateLimitResult is the outcome of one bucket take.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(bucketScript)}
}

// Allow takes one token from the bucket at key, refilling at rate tokens per
// second up to burst.
func (b *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	if b == nil || b.client == nil {
		return denied, errBucketUnavailable
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return denied, errBucketArgs
	}

	reply, err := b.script.Run(ctx, b.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds()).Int64Slice()
	if err != nil {
		return denied, err
	}
	return decodeBucketReply(reply, burst)
}

func decodeBucketReply(reply []int64, burst int) (*RateLimitResult, error) {
	if len(reply) != 4 {
		return &RateLimitResult{Limit: burst}, fmt.Errorf("rate limiter: unexpected reply %v", reply)
	}
	retry := time.Duration(reply[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    reply[0] == 1,
		Limit:      burst,
		Remaining:  int(reply[1] / 1000),
		ResetTime:  time.UnixMilli(reply[3]).Add(retry),
		RetryAfter: retry,
	}, nil
}

// bucketTTL keeps idle buckets around for two full refills.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	secs := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(secs) * time.Second
}
