package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/schoolfee/internal/config"
)

// Action groups endpoints that share a bucket.
type Action string

const (
	ActionDocument Action = "document"
	ActionGenerate Action = "generate"
)

const keySchoolAction = "schoolfee:ratelimit:%s:%s"

type bucketLimit struct {
	rate  float64
	burst int
}

// SchoolLimiter applies token buckets per (school, action).
type SchoolLimiter struct {
	bucket *TokenBucket
	limits map[Action]bucketLimit
}

// NewSchoolLimiter returns nil when rate limiting is disabled or Redis is
// not configured.
func NewSchoolLimiter(cfg config.Config, client *redis.Client) *SchoolLimiter {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil
	}
	return &SchoolLimiter{
		bucket: NewTokenBucket(client),
		limits: map[Action]bucketLimit{
			ActionDocument: {rate: cfg.RateLimit.DocumentRate, burst: cfg.RateLimit.DocumentBurst},
			ActionGenerate: {rate: cfg.RateLimit.GenerateRate, burst: cfg.RateLimit.GenerateBurst},
		},
	}
}

func (l *SchoolLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether the school may perform action now. Disabled limiters
// and unknown actions always allow.
func (l *SchoolLimiter) Allow(ctx context.Context, schoolID string, action Action) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	limit, ok := l.limits[action]
	if !ok || limit.rate <= 0 || limit.burst <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keySchoolAction, strings.TrimSpace(schoolID), action)
	return l.bucket.Allow(ctx, key, limit.rate, limit.burst)
}

// RetryAfterSeconds rounds up for the Retry-After header.
func RetryAfterSeconds(res *RateLimitResult) int {
	if res == nil || res.RetryAfter <= 0 {
		return 1
	}
	return int((res.RetryAfter + time.Second - 1) / time.Second)
}
