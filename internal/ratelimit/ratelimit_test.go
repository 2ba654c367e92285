package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/schoolfee/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllows(t *testing.T) {
	l := NewSchoolLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, nil)
	assert.Nil(t, l)

	res, err := l.Allow(context.Background(), "1", ActionDocument)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilLockerErrors(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())
	token, err := l.Acquire(context.Background(), "k", time.Second)
	assert.Empty(t, token)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(nil))
	assert.Equal(t, 2, RetryAfterSeconds(&RateLimitResult{RetryAfter: 1500 * time.Millisecond}))
	assert.Equal(t, 1, RetryAfterSeconds(&RateLimitResult{RetryAfter: time.Second}))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, bucketTTL(2, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))
}

func TestDecodeBucketReply(t *testing.T) {
	res, err := decodeBucketReply([]int64{1, 4500, 0, 1_700_000_000_000}, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 5, res.Limit)
	assert.Zero(t, res.RetryAfter)

	res, err = decodeBucketReply([]int64{0, 250, 1500, 1_700_000_000_000}, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1500*time.Millisecond, res.RetryAfter)
	assert.Equal(t, time.UnixMilli(1_700_000_001_500), res.ResetTime)
	assert.Equal(t, 2, RetryAfterSeconds(res))

	_, err = decodeBucketReply([]int64{1}, 5)
	assert.Error(t, err)
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	var missing *TokenBucket
	res, err := missing.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, errBucketUnavailable)
	assert.False(t, res.Allowed)
}
