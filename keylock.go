package arbor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/ports"
)

// lockTTL bounds how long a crashed replica keeps a conversation's
// distributed lock.
const lockTTL = 30 * time.Second

// lockEntry holds one conversation's mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyLock serializes turns per conversation. Entries are reference counted
// so idle conversations do not accumulate mutexes. An optional distributed
// locker extends the exclusion across replicas.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	locker  ports.DistributedLocker
	logger  *slog.Logger
}

func newKeyLock(locker ports.DistributedLocker, logger *slog.Logger) *keyLock {
	return &keyLock{
		entries: make(map[string]*lockEntry),
		locker:  locker,
		logger:  logger,
	}
}

// acquire gets or creates the entry for key and increments its reference
// count. Callers lock entry.mu themselves and pair with release(key).
func (k *keyLock) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *keyLock) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.entries, key)
	}
}

// withLock runs fn while holding the conversation's lock, in-process first
// and then across replicas when a distributed locker is configured.
func (k *keyLock) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := k.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		k.release(key)
	}()

	if k.locker != nil {
		unlock, err := k.locker.Lock(ctx, key, lockTTL)
		if err != nil {
			return fmt.Errorf("acquiring conversation lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				k.logger.Warn("failed to release conversation lock, ttl will expire it",
					"conversation", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
