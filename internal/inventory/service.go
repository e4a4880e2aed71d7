// Package inventory owns the available/reserved/total counters for each
// SKU and the three legal transitions between them.  Every mutation runs
// under a per-SKU distributed lock, then writes through an optimistic
// version check: the lock serializes cooperating callers, the version
// check catches anyone who bypassed it (administrative writes, a
// double-holder after a lock TTL lapse).
package inventory

import (
	"context"
	"log"
	"time"

	"github.com/adityamehta/reservation-inventory/internal/cache"
	"github.com/adityamehta/reservation-inventory/internal/lock"
	"github.com/adityamehta/reservation-inventory/internal/model"
)

// ProductStore is the persistence port the state machine drives.  The
// repository implementation maps these onto the products table.
type ProductStore interface {
	// GetBySKU loads the product row, or repository.ErrNotFound.
	GetBySKU(ctx context.Context, sku string) (*model.Product, error)

	// GetBySKUs loads the rows for the given SKUs; missing SKUs are simply
	// absent from the result.
	GetBySKUs(ctx context.Context, skus []string) ([]*model.Product, error)

	// UpdateCounts writes the product's counters, guarded by the version
	// the caller read.  On success the product's Version is advanced.  If
	// a concurrent writer got there first it returns
	// repository.ErrConcurrentModification and writes nothing.
	UpdateCounts(ctx context.Context, p *model.Product) error
}

// Availability pairs a SKU with its available unit count for batch reads.
type Availability struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
}

// Service is the inventory state machine.
type Service struct {
	store ProductStore
	locks *lock.Locker
	cache *cache.InventoryCache
}

// NewService wires the state machine to its persistence, lock and cache
// collaborators.
func NewService(store ProductStore, locks *lock.Locker, invCache *cache.InventoryCache) *Service {
	return &Service{store: store, locks: locks, cache: invCache}
}

func skuLock(sku string) string { return "inventory:" + sku }

// mutate runs apply on the product row for sku inside the per-SKU lock
// and commits the result with the optimistic version check.  The cache is
// refreshed on success and invalidated on any failure so it can never
// serve a stale-optimistic snapshot.
func (s *Service) mutate(ctx context.Context, sku string, apply func(p *model.Product) error) error {
	if err := s.locks.AcquireWait(ctx, skuLock(sku)); err != nil {
		return err
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), skuLock(sku)); err != nil {
			log.Printf("inventory: release lock for %s failed: %v", sku, err)
		}
	}()

	p, err := s.store.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if err := apply(p); err != nil {
		s.cache.Invalidate(ctx, sku)
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateCounts(ctx, p); err != nil {
		s.cache.Invalidate(ctx, sku)
		return err
	}
	s.cache.Put(ctx, p)
	return nil
}

// Reserve moves qty units from available to reserved.
func (s *Service) Reserve(ctx context.Context, sku string, qty int) error {
	return s.mutate(ctx, sku, func(p *model.Product) error {
		if p.Available < qty {
			return insufficientInventory(sku, qty, p.Available)
		}
		p.Available -= qty
		p.Reserved += qty
		return nil
	})
}

// Confirm converts qty reserved units into sold units: they leave
// reserved permanently without returning to available.  Total is
// unchanged; sold stock is tracked outside these two counters.
func (s *Service) Confirm(ctx context.Context, sku string, qty int) error {
	return s.mutate(ctx, sku, func(p *model.Product) error {
		if p.Reserved < qty {
			return insufficientReserved(sku, qty, p.Reserved)
		}
		p.Reserved -= qty
		return nil
	})
}

// Release returns qty reserved units to available.
func (s *Service) Release(ctx context.Context, sku string, qty int) error {
	return s.mutate(ctx, sku, func(p *model.Product) error {
		if p.Reserved < qty {
			return insufficientReserved(sku, qty, p.Reserved)
		}
		p.Reserved -= qty
		p.Available += qty
		return nil
	})
}

// AdminUpdate sets absolute counter values under the SKU lock.  Only
// non-nil fields are applied.  The resulting counters must keep
// available + reserved within total; the remainder is sold stock.
func (s *Service) AdminUpdate(ctx context.Context, sku string, total, available, reserved *int) error {
	return s.mutate(ctx, sku, func(p *model.Product) error {
		if total != nil {
			p.Total = *total
		}
		if available != nil {
			p.Available = *available
		}
		if reserved != nil {
			p.Reserved = *reserved
		}
		if p.Available < 0 || p.Reserved < 0 || p.Available+p.Reserved > p.Total {
			return errInvalidCounters(sku, p.Total, p.Available, p.Reserved)
		}
		return nil
	})
}

// CheckAvailability returns the available unit count for sku, consulting
// the snapshot cache first and populating it on miss.
func (s *Service) CheckAvailability(ctx context.Context, sku string) (int, error) {
	if snap, ok := s.cache.Get(ctx, sku); ok {
		return snap.Available, nil
	}
	p, err := s.store.GetBySKU(ctx, sku)
	if err != nil {
		return 0, err
	}
	s.cache.Put(ctx, p)
	return p.Available, nil
}

// CheckBatchAvailability reports availability for each requested SKU in
// request order.  Unknown SKUs report 0 rather than an error.
func (s *Service) CheckBatchAvailability(ctx context.Context, skus []string) ([]Availability, error) {
	out := make([]Availability, 0, len(skus))
	var misses []string
	found := make(map[string]int, len(skus))

	for _, sku := range skus {
		if snap, ok := s.cache.Get(ctx, sku); ok {
			found[sku] = snap.Available
		} else {
			misses = append(misses, sku)
		}
	}

	if len(misses) > 0 {
		products, err := s.store.GetBySKUs(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			found[p.SKU] = p.Available
			s.cache.Put(ctx, p)
		}
	}

	for _, sku := range skus {
		out = append(out, Availability{SKU: sku, Available: found[sku]})
	}
	return out, nil
}
