package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adityamehta/reservation-inventory/internal/kv"
)

func fastCoordinator(store kv.Store) *Coordinator {
	return NewCoordinator(store, Config{
		PollInterval: time.Millisecond,
		WaitTimeout:  500 * time.Millisecond,
	})
}

func TestCoordinator_ExecutesOnce(t *testing.T) {
	c := fastCoordinator(kv.NewMemoryStore())
	ctx := context.Background()

	var calls int32
	op := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{"id":"r1"}`), nil
	}

	first, err := c.Execute(ctx, "key-1", op)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, err := c.Execute(ctx, "key-1", op)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected exactly 1 execution, got %d", calls)
	}
	if string(first) != string(second) {
		t.Errorf("Expected replayed response to match, got %q vs %q", first, second)
	}
}

func TestCoordinator_ConcurrentCallersConverge(t *testing.T) {
	c := fastCoordinator(kv.NewMemoryStore())
	ctx := context.Background()

	var calls int32
	op := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond) // keep the lock held while others arrive
		return []byte(`{"id":"r1"}`), nil
	}

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.Execute(ctx, "shared", op)
			results[i], errs[i] = string(out), err
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected exactly 1 execution across %d callers, got %d", callers, calls)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d: expected no error, got: %v", i, errs[i])
		}
		if results[i] != `{"id":"r1"}` {
			t.Errorf("Caller %d: expected shared response, got %q", i, results[i])
		}
	}
}

func TestCoordinator_FailureNotCached(t *testing.T) {
	c := fastCoordinator(kv.NewMemoryStore())
	ctx := context.Background()

	boom := errors.New("out of stock")
	calls := 0
	op := func(ctx context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return []byte("ok"), nil
	}

	if _, err := c.Execute(ctx, "retry-key", op); !errors.Is(err, boom) {
		t.Fatalf("Expected operation error to propagate, got: %v", err)
	}

	// The failed attempt must leave the key free for a retry.
	out, err := c.Execute(ctx, "retry-key", op)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got: %v", err)
	}
	if string(out) != "ok" {
		t.Errorf("Expected retry result, got %q", out)
	}
	if calls != 2 {
		t.Errorf("Expected 2 executions, got %d", calls)
	}
}

func TestCoordinator_FallbackAfterCrashedHolder(t *testing.T) {
	store := kv.NewMemoryStore()
	c := NewCoordinator(store, Config{
		PollInterval: 20 * time.Millisecond,
		WaitTimeout:  500 * time.Millisecond,
	})
	ctx := context.Background()

	// Simulate a crashed holder: a lock about to expire, processing marker
	// gone, no response ever stored.  By the first poll the lock TTL has
	// lapsed, so the single fallback attempt takes over.
	store.Set(ctx, "idem:lock:dead", "1", 5*time.Millisecond)

	var calls int32
	op := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("recovered"), nil
	}

	out, err := c.Execute(ctx, "dead", op)
	if err != nil {
		t.Fatalf("Expected fallback execution to succeed, got: %v", err)
	}
	if string(out) != "recovered" {
		t.Errorf("Expected fallback result, got %q", out)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected exactly 1 execution, got %d", calls)
	}
}

func TestCoordinator_UnresolvedWhenLockStuck(t *testing.T) {
	store := kv.NewMemoryStore()
	c := NewCoordinator(store, Config{
		PollInterval: time.Millisecond,
		WaitTimeout:  30 * time.Millisecond,
	})
	ctx := context.Background()

	// Lock held for much longer than the wait budget, no marker, no response.
	store.Set(ctx, "idem:lock:stuck", "1", time.Minute)

	_, err := c.Execute(ctx, "stuck", func(ctx context.Context) ([]byte, error) {
		t.Fatal("operation must not run while the lock is held elsewhere")
		return nil, nil
	})
	if !errors.Is(err, ErrConcurrentProcessingUnresolved) {
		t.Errorf("Expected ErrConcurrentProcessingUnresolved, got: %v", err)
	}
}

func TestCoordinator_WaiterPicksUpStoredResponse(t *testing.T) {
	store := kv.NewMemoryStore()
	c := fastCoordinator(store)
	ctx := context.Background()

	// A holder is processing; partway through the wait its response lands.
	store.Set(ctx, "idem:lock:busy", "1", time.Minute)
	store.Set(ctx, "idem:processing:busy", "1", time.Minute)
	go func() {
		time.Sleep(10 * time.Millisecond)
		store.StoreAndClear(ctx, "idem:response:busy", "done", time.Minute,
			"idem:lock:busy", "idem:processing:busy")
	}()

	out, err := c.Execute(ctx, "busy", func(ctx context.Context) ([]byte, error) {
		t.Fatal("operation must not run; the holder's response should be replayed")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(out) != "done" {
		t.Errorf("Expected holder's response, got %q", out)
	}
}
