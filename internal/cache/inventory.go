// Package cache holds the fast-path inventory cache.  Entries are plain
// JSON snapshots of the persisted counters, never live object references,
// and every entry carries a TTL.  The cache is an optimization aid only:
// a miss or a backend failure always falls through to the record store.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/adityamehta/reservation-inventory/internal/kv"
	"github.com/adityamehta/reservation-inventory/internal/model"
)

// DefaultTTL is how long an inventory snapshot stays valid without a
// refreshing write.
const DefaultTTL = 30 * time.Minute

// Snapshot is the serialized form of a product's inventory counters at a
// point in time.  Version travels with the counters so consumers can tell
// which committed write the snapshot reflects.
type Snapshot struct {
	SKU       string    `json:"sku"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	Total     int       `json:"total"`
	Version   int64     `json:"version"`
	CachedAt  time.Time `json:"cached_at"`
}

// InventoryCache reads and writes inventory snapshots in the kv backend.
type InventoryCache struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewInventoryCache builds a cache with the given snapshot TTL; a zero
// ttl selects DefaultTTL.
func NewInventoryCache(store kv.Store, ttl time.Duration) *InventoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InventoryCache{store: store, ttl: ttl, now: time.Now}
}

func snapshotKey(sku string) string { return "inventory:sku:" + sku }

// Get returns the cached snapshot for sku.  A miss, an expired entry or a
// backend problem all report ok=false; the caller falls back to the
// record store.
func (c *InventoryCache) Get(ctx context.Context, sku string) (Snapshot, bool) {
	raw, err := c.store.Get(ctx, snapshotKey(sku))
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// Unreadable entry: drop it rather than serve it again.
		_ = c.store.Del(ctx, snapshotKey(sku))
		return Snapshot{}, false
	}
	return snap, true
}

// Put refreshes the snapshot for a product after a committed write.
// Failures are logged and swallowed; the next reader will repopulate.
func (c *InventoryCache) Put(ctx context.Context, p *model.Product) {
	snap := Snapshot{
		SKU:       p.SKU,
		Available: p.Available,
		Reserved:  p.Reserved,
		Total:     p.Total,
		Version:   p.Version,
		CachedAt:  c.now().UTC(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		log.Printf("cache: marshal snapshot for %s failed: %v", p.SKU, err)
		return
	}
	if err := c.store.Set(ctx, snapshotKey(p.SKU), string(raw), c.ttl); err != nil {
		log.Printf("cache: refresh snapshot for %s failed: %v", p.SKU, err)
	}
}

// Invalidate drops the snapshot for sku.  Called after a failed mutation
// so the cache is never left optimistically stale.
func (c *InventoryCache) Invalidate(ctx context.Context, sku string) {
	if err := c.store.Del(ctx, snapshotKey(sku)); err != nil {
		log.Printf("cache: invalidate snapshot for %s failed: %v", sku, err)
	}
}
