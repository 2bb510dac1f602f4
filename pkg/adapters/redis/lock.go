package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLockPrefix namespaces every lock key written by the Locker.
const DefaultLockPrefix = "arbor:lock:"

// pollInterval is how often Lock retries a held lock.
const pollInterval = 100 * time.Millisecond

// ErrLockAcquire is returned when a lock cannot be acquired before the
// context is canceled.
var ErrLockAcquire = errors.New("redis: failed to acquire lock")

// unlockScript deletes the lock only if it still holds our token, so a
// holder whose lock expired cannot release a successor's lock.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.DistributedLocker using Redis SET NX with a
// per-acquisition token.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a Locker on top of an existing client. An empty prefix
// selects DefaultLockPrefix.
func NewLocker(client *backend.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

// Lock acquires the lock for key, polling until it succeeds or ctx is
// canceled. The ttl caps how long a crashed holder keeps the key locked.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquiring lock %q: %w", key, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !acquired {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
			acquired, err = l.client.SetNX(ctx, lockKey, token, ttl).Result()
			if err != nil {
				return nil, fmt.Errorf("redis: acquiring lock %q: %w", key, err)
			}
		}
	}

	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err(); err != nil {
			return fmt.Errorf("redis: releasing lock %q: %w", key, err)
		}
		return nil
	}, nil
}
