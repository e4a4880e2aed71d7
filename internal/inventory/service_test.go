package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adityamehta/reservation-inventory/internal/cache"
	"github.com/adityamehta/reservation-inventory/internal/kv"
	"github.com/adityamehta/reservation-inventory/internal/lock"
	"github.com/adityamehta/reservation-inventory/internal/model"
	"github.com/adityamehta/reservation-inventory/internal/repository"
)

// fakeProductStore is an in-memory ProductStore with the same optimistic
// version semantics as the SQL repository.
type fakeProductStore struct {
	mu       sync.Mutex
	products map[string]*model.Product
	// conflicts forces the next UpdateCounts for a SKU to report a
	// version conflict, simulating a writer that bypassed the lock.
	conflicts map[string]bool
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{
		products:  make(map[string]*model.Product),
		conflicts: make(map[string]bool),
	}
}

func (f *fakeProductStore) add(sku string, total, available, reserved int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[sku] = &model.Product{
		ID: uuid.New(), SKU: sku, Name: sku,
		Total: total, Available: available, Reserved: reserved,
	}
}

func (f *fakeProductStore) get(sku string) model.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.products[sku]
}

func (f *fakeProductStore) GetBySKU(_ context.Context, sku string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[sku]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductStore) GetBySKUs(_ context.Context, skus []string) ([]*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Product
	for _, sku := range skus {
		if p, ok := f.products[sku]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProductStore) UpdateCounts(_ context.Context, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.products[p.SKU]
	if !ok {
		return repository.ErrNotFound
	}
	if f.conflicts[p.SKU] {
		delete(f.conflicts, p.SKU)
		return repository.ErrConcurrentModification
	}
	if cur.Version != p.Version {
		return repository.ErrConcurrentModification
	}
	cp := *p
	cp.Version++
	f.products[p.SKU] = &cp
	p.Version++
	return nil
}

func newTestService(store ProductStore) (*Service, *cache.InventoryCache) {
	mem := kv.NewMemoryStore()
	locks := lock.NewWithOptions(mem, time.Minute, time.Millisecond, 10)
	invCache := cache.NewInventoryCache(mem, time.Minute)
	return NewService(store, locks, invCache), invCache
}

func TestService_ReserveConfirmReleaseScenario(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 10, 0)
	svc, _ := newTestService(store)
	ctx := context.Background()

	if err := svc.Reserve(ctx, "A", 4); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	p := store.get("A")
	if p.Available != 6 || p.Reserved != 4 {
		t.Errorf("After reserve: expected 6/4, got %d/%d", p.Available, p.Reserved)
	}

	if err := svc.Confirm(ctx, "A", 4); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	p = store.get("A")
	if p.Available != 6 || p.Reserved != 0 {
		t.Errorf("After confirm: expected 6/0, got %d/%d", p.Available, p.Reserved)
	}

	// Releasing against zero reserved units must fail and change nothing.
	err := svc.Release(ctx, "A", 4)
	if !errors.Is(err, ErrInsufficientReserved) {
		t.Fatalf("Expected ErrInsufficientReserved, got: %v", err)
	}
	p = store.get("A")
	if p.Available != 6 || p.Reserved != 0 {
		t.Errorf("Failed release must not change counters, got %d/%d", p.Available, p.Reserved)
	}
}

func TestService_ReserveInsufficient(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 5, 3, 2)
	svc, _ := newTestService(store)

	err := svc.Reserve(context.Background(), "A", 4)
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("Expected ErrInsufficientInventory, got: %v", err)
	}
	p := store.get("A")
	if p.Available != 3 || p.Reserved != 2 {
		t.Errorf("Failed reserve must not change counters, got %d/%d", p.Available, p.Reserved)
	}
	if p.Version != 0 {
		t.Errorf("Failed reserve must not advance version, got %d", p.Version)
	}
}

func TestService_InvariantUnderConcurrency(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 100, 100, 0)
	svc, _ := newTestService(store)
	ctx := context.Background()

	// Interleave reserve and release from many goroutines; the per-SKU
	// lock must serialize them so every committed write keeps
	// available + reserved == total.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Reserve(ctx, "A", 3); err != nil {
				return
			}
			_ = svc.Release(ctx, "A", 3)
		}()
	}
	wg.Wait()

	p := store.get("A")
	if p.Available+p.Reserved != p.Total {
		t.Errorf("Invariant broken: %d + %d != %d", p.Available, p.Reserved, p.Total)
	}
	if p.Available != 100 || p.Reserved != 0 {
		t.Errorf("Expected all units back, got %d/%d", p.Available, p.Reserved)
	}
}

func TestService_VersionConflictSurfaced(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 10, 0)
	store.conflicts["A"] = true
	svc, _ := newTestService(store)

	err := svc.Reserve(context.Background(), "A", 1)
	if !errors.Is(err, repository.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification to surface unchanged, got: %v", err)
	}
}

func TestService_CacheRefreshAndInvalidate(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 10, 0)
	svc, invCache := newTestService(store)
	ctx := context.Background()

	if err := svc.Reserve(ctx, "A", 2); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	snap, ok := invCache.Get(ctx, "A")
	if !ok {
		t.Fatal("Expected snapshot after successful write")
	}
	if snap.Available != 8 || snap.Reserved != 2 {
		t.Errorf("Expected snapshot 8/2, got %d/%d", snap.Available, snap.Reserved)
	}

	// A failed mutation must drop the snapshot, not leave it stale.
	if err := svc.Reserve(ctx, "A", 1000); !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("Expected ErrInsufficientInventory, got: %v", err)
	}
	if _, ok := invCache.Get(ctx, "A"); ok {
		t.Error("Expected snapshot to be invalidated after failed write")
	}
}

func TestService_CheckAvailability(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 7, 3)
	svc, invCache := newTestService(store)
	ctx := context.Background()

	n, err := svc.CheckAvailability(ctx, "A")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 7 {
		t.Errorf("Expected 7 available, got %d", n)
	}
	// Miss populated the cache.
	if _, ok := invCache.Get(ctx, "A"); !ok {
		t.Error("Expected snapshot after read-through")
	}

	if _, err := svc.CheckAvailability(ctx, "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown SKU, got: %v", err)
	}
}

func TestService_CheckBatchAvailability(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 7, 3)
	store.add("B", 5, 5, 0)
	svc, _ := newTestService(store)

	out, err := svc.CheckBatchAvailability(context.Background(), []string{"A", "ghost", "B"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := []Availability{{"A", 7}, {"ghost", 0}, {"B", 5}}
	if len(out) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, want[i], out[i])
		}
	}
}

func TestService_AdminUpdate(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 7, 3)
	svc, _ := newTestService(store)
	ctx := context.Background()

	total, available := 20, 17
	if err := svc.AdminUpdate(ctx, "A", &total, &available, nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	p := store.get("A")
	if p.Total != 20 || p.Available != 17 || p.Reserved != 3 {
		t.Errorf("Expected 20/17/3, got %d/%d/%d", p.Total, p.Available, p.Reserved)
	}

	bad := 100
	err := svc.AdminUpdate(ctx, "A", nil, &bad, nil)
	if !errors.Is(err, ErrInvalidCounters) {
		t.Errorf("Expected ErrInvalidCounters, got: %v", err)
	}
}

func TestService_LockTimeoutSurfaced(t *testing.T) {
	store := newFakeProductStore()
	store.add("A", 10, 10, 0)

	mem := kv.NewMemoryStore()
	locks := lock.NewWithOptions(mem, time.Minute, time.Millisecond, 3)
	svc := NewService(store, locks, cache.NewInventoryCache(mem, time.Minute))
	ctx := context.Background()

	// Hold the SKU lock from outside so every attempt fails.
	if ok, _ := mem.SetNX(ctx, "lock:inventory:A", "1", time.Minute); !ok {
		t.Fatal("setup: could not seed lock")
	}

	err := svc.Reserve(ctx, "A", 1)
	if !errors.Is(err, lock.ErrLockTimeout) {
		t.Errorf("Expected ErrLockTimeout, got: %v", err)
	}
}
