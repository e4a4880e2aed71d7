// Package kv abstracts the key-value backend used for cross-process
// coordination (locks, idempotency markers) and for the fast-path cache
// (inventory snapshots, cached responses).  Entries held here are derived,
// expendable state: losing the backend must never corrupt the relational
// store, so every write carries a TTL and readers tolerate misses.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNoKey is returned by Get when the key does not exist or has expired.
var ErrNoKey = errors.New("kv: key not found")

// Store is the minimal contract the coordination and cache layers need.
// All operations are safe for concurrent use from multiple processes when
// backed by a shared server (Redis); the in-memory implementation covers
// tests and single-process degraded mode.
type Store interface {
	// SetNX stores value under key only if the key is absent, applying the
	// TTL atomically.  It reports whether the value was stored.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Set unconditionally stores value under key with the given TTL.
	// A zero TTL means the entry does not expire.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value stored under key, or ErrNoKey.
	Get(ctx context.Context, key string) (string, error)

	// Exists reports whether key currently holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Del removes the given keys.  Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// StoreAndClear stores value under key with the given TTL and deletes
	// the clear keys as one atomic unit.  It backs the idempotency
	// coordinator's "store result + release lock + drop processing marker"
	// step, which must be visible to other processes all-or-nothing.
	StoreAndClear(ctx context.Context, key, value string, ttl time.Duration, clear ...string) error
}
