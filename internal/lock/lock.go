// Package lock provides a per-key mutual exclusion primitive on top of the
// shared kv backend.  A lock is a SETNX entry with a bounded TTL so that a
// crashed holder can never wedge its key forever.  The TTL is a soft guard:
// if an operation outlives it a second holder can appear, and the storage
// layer's optimistic version check is the last line of defense.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when a lock could not be acquired within the
// configured number of polling attempts.  It is retryable: the caller may
// repeat the whole operation later.
var ErrLockTimeout = errors.New("lock: acquisition timed out")

const (
	// DefaultTTL bounds how long an orphaned lock can survive.  Generous
	// relative to the expected latency of a locked read-validate-write.
	DefaultTTL = 5 * time.Minute

	// DefaultPollInterval and DefaultMaxAttempts bound the wait for a
	// contended lock before surfacing ErrLockTimeout.
	DefaultPollInterval = 1 * time.Second
	DefaultMaxAttempts  = 30
)

// Store is the subset of the kv backend the locker needs.
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Locker hands out named locks backed by the shared store.  All instances
// of the service pointed at the same backend contend on the same keys, so
// the lock serializes critical sections across processes.
type Locker struct {
	store        Store
	ttl          time.Duration
	pollInterval time.Duration
	maxAttempts  int
}

// New builds a Locker with the default TTL and wait bounds.
func New(store Store) *Locker {
	return &Locker{
		store:        store,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
}

// NewWithOptions builds a Locker with explicit bounds.  Zero values fall
// back to the defaults.
func NewWithOptions(store Store, ttl, pollInterval time.Duration, maxAttempts int) *Locker {
	l := New(store)
	if ttl > 0 {
		l.ttl = ttl
	}
	if pollInterval > 0 {
		l.pollInterval = pollInterval
	}
	if maxAttempts > 0 {
		l.maxAttempts = maxAttempts
	}
	return l
}

func lockKey(name string) string { return "lock:" + name }

// TryAcquire makes a single attempt to take the named lock.  It reports
// whether the lock was acquired.
func (l *Locker) TryAcquire(ctx context.Context, name string) (bool, error) {
	return l.store.SetNX(ctx, lockKey(name), "1", l.ttl)
}

// AcquireWait takes the named lock, polling while it is held elsewhere.
// It returns ErrLockTimeout once the attempt budget is exhausted and the
// context error if the caller is cancelled mid-wait.
func (l *Locker) AcquireWait(ctx context.Context, name string) error {
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		ok, err := l.TryAcquire(ctx, name)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
	return ErrLockTimeout
}

// Release drops the named lock.  Releasing a lock that already expired is
// not an error.
func (l *Locker) Release(ctx context.Context, name string) error {
	return l.store.Del(ctx, lockKey(name))
}
