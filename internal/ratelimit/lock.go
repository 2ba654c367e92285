package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld means another holder owns the key.
var ErrLockHeld = errors.New("lock_held")

var errLockUnavailable = errors.New("lock client not configured")

// Compare-and-delete so a holder whose TTL lapsed cannot free a successor's
// lock.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)

// Locker hands out single-holder Redis leases. The scheduler uses it so one
// replica sweeps overdue invoices per tick.
type Locker struct {
	client *redis.Client
}

// NewLocker returns nil for a nil client.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Acquire returns an owner token for key, or ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !l.Enabled() {
		return "", errLockUnavailable
	}
	if key == "" || ttl <= 0 {
		return "", errors.New("lock needs a key and a positive ttl")
	}
	token := uuid.NewString()
	won, err := l.client.SetNX(ctx, key, token, ttl).Result()
	switch {
	case err != nil:
		return "", err
	case !won:
		return "", ErrLockHeld
	}
	return token, nil
}

// Release frees key if token still owns it. Empty tokens are a no-op.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if !l.Enabled() || key == "" || token == "" {
		return nil
	}
	return releaseIfOwner.Run(ctx, l.client, []string{key}, token).Err()
}
