package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/adityamehta/reservation-inventory/internal/kv"
)

// ErrConcurrentProcessingUnresolved is returned when another holder was
// processing the same key, its processing window closed without a stored
// response, and the single fallback attempt could not take over.  It is
// retryable: a later call will either replay the stored response or
// execute fresh.
var ErrConcurrentProcessingUnresolved = errors.New("idempotency: concurrent processing unresolved")

const (
	// DefaultLockTTL bounds an orphaned per-key lock from a crashed holder.
	DefaultLockTTL = 5 * time.Minute
	// DefaultProcessingTTL is the lifetime of the processing marker set by
	// the live holder before it runs the operation.
	DefaultProcessingTTL = 2 * time.Minute
	// DefaultResponseTTL is how long a completed response stays replayable.
	DefaultResponseTTL = 10 * time.Minute
	// DefaultPollInterval and DefaultWaitTimeout bound how long a blocked
	// caller waits for the live holder's result.
	DefaultPollInterval = 200 * time.Millisecond
	DefaultWaitTimeout  = 2 * time.Minute
)

// Operation is the side-effecting unit of work being deduplicated.  Its
// returned bytes are stored verbatim and replayed to every caller that
// shares the key.  Errors are never cached; a failed execution leaves the
// key free for a future retry.
type Operation func(ctx context.Context) ([]byte, error)

// Coordinator serializes executions per key using the shared kv backend:
// a SETNX lock elects the one live executor, a processing marker tells
// waiters work is underway, and the stored response makes completion
// visible to everyone atomically.
type Coordinator struct {
	store         kv.Store
	lockTTL       time.Duration
	processingTTL time.Duration
	responseTTL   time.Duration
	pollInterval  time.Duration
	waitTimeout   time.Duration
}

// Config carries the coordinator's TTL and wait bounds.  Zero fields fall
// back to the package defaults.
type Config struct {
	LockTTL       time.Duration
	ProcessingTTL time.Duration
	ResponseTTL   time.Duration
	PollInterval  time.Duration
	WaitTimeout   time.Duration
}

// NewCoordinator builds a Coordinator over the given backend.
func NewCoordinator(store kv.Store, cfg Config) *Coordinator {
	c := &Coordinator{
		store:         store,
		lockTTL:       DefaultLockTTL,
		processingTTL: DefaultProcessingTTL,
		responseTTL:   DefaultResponseTTL,
		pollInterval:  DefaultPollInterval,
		waitTimeout:   DefaultWaitTimeout,
	}
	if cfg.LockTTL > 0 {
		c.lockTTL = cfg.LockTTL
	}
	if cfg.ProcessingTTL > 0 {
		c.processingTTL = cfg.ProcessingTTL
	}
	if cfg.ResponseTTL > 0 {
		c.responseTTL = cfg.ResponseTTL
	}
	if cfg.PollInterval > 0 {
		c.pollInterval = cfg.PollInterval
	}
	if cfg.WaitTimeout > 0 {
		c.waitTimeout = cfg.WaitTimeout
	}
	return c
}

func responseKey(key string) string   { return "idem:response:" + key }
func lockKey(key string) string       { return "idem:lock:" + key }
func processingKey(key string) string { return "idem:processing:" + key }

// Execute runs op under the key's exclusion protocol and returns either
// op's result or the response a concurrent holder stored for the same key.
func (c *Coordinator) Execute(ctx context.Context, key string, op Operation) ([]byte, error) {
	// Fast path: a completed response exists, replay it verbatim.
	if resp, err := c.store.Get(ctx, responseKey(key)); err == nil {
		return []byte(resp), nil
	} else if !errors.Is(err, kv.ErrNoKey) {
		return nil, err
	}

	acquired, err := c.store.SetNX(ctx, lockKey(key), "1", c.lockTTL)
	if err != nil {
		return nil, err
	}
	if acquired {
		return c.runLocked(ctx, key, op)
	}
	return c.awaitHolder(ctx, key, op)
}

// runLocked executes op as the elected holder.  The caller must have won
// the per-key lock.
func (c *Coordinator) runLocked(ctx context.Context, key string, op Operation) ([]byte, error) {
	if err := c.store.Set(ctx, processingKey(key), "1", c.processingTTL); err != nil {
		_ = c.store.Del(ctx, lockKey(key))
		return nil, err
	}

	// Another holder may have completed between the response lookup and
	// the lock grant; never execute twice.
	if resp, err := c.store.Get(ctx, responseKey(key)); err == nil {
		_ = c.store.Del(ctx, lockKey(key), processingKey(key))
		return []byte(resp), nil
	}

	result, err := op(ctx)
	if err != nil {
		// Errors are not cached: free the key so a future caller retries.
		_ = c.store.Del(ctx, lockKey(key), processingKey(key))
		return nil, err
	}

	// Success becomes visible to every waiter in one atomic step.
	if err := c.store.StoreAndClear(ctx, responseKey(key), string(result), c.responseTTL,
		lockKey(key), processingKey(key)); err != nil {
		return nil, err
	}
	return result, nil
}

// awaitHolder polls while another caller holds the key.  It returns the
// stored response as soon as it appears.  If the processing marker
// vanishes without a response, the other worker failed or crashed; one
// takeover attempt is made before giving up.
func (c *Coordinator) awaitHolder(ctx context.Context, key string, op Operation) ([]byte, error) {
	deadline := time.Now().Add(c.waitTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		if resp, err := c.store.Get(ctx, responseKey(key)); err == nil {
			return []byte(resp), nil
		} else if !errors.Is(err, kv.ErrNoKey) {
			return nil, err
		}

		processing, err := c.store.Exists(ctx, processingKey(key))
		if err != nil {
			return nil, err
		}
		if !processing {
			// The marker may lag the lock by an instant right after
			// election; only a vanished lock means the holder is gone.
			held, err := c.store.Exists(ctx, lockKey(key))
			if err != nil {
				return nil, err
			}
			if held {
				continue
			}
			// Processing ended with no result.  Exactly one fallback:
			// try to become the holder ourselves.
			acquired, err := c.store.SetNX(ctx, lockKey(key), "1", c.lockTTL)
			if err != nil {
				return nil, err
			}
			if acquired {
				return c.runLocked(ctx, key, op)
			}
			return nil, ErrConcurrentProcessingUnresolved
		}
	}
	return nil, ErrConcurrentProcessingUnresolved
}
