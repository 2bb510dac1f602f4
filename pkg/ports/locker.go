package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a previously acquired lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes turn processing across process boundaries.
// The engine serializes turns per conversation in-process on its own; a
// locker extends that exclusion to replicas sharing a storage backend, so
// only one replica mutates a conversation at a time.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is canceled.
	// The ttl bounds how long a crashed holder keeps the key locked. The
	// returned UnlockFunc must be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
