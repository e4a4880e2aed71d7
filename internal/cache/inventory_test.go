package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adityamehta/reservation-inventory/internal/kv"
	"github.com/adityamehta/reservation-inventory/internal/model"
)

func testProduct() *model.Product {
	return &model.Product{
		ID:        uuid.New(),
		SKU:       "WIDGET-1",
		Name:      "Widget",
		Total:     10,
		Available: 7,
		Reserved:  3,
		Version:   4,
	}
}

func TestInventoryCache_PutGet(t *testing.T) {
	c := NewInventoryCache(kv.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "WIDGET-1"); ok {
		t.Fatal("Expected miss on empty cache")
	}

	c.Put(ctx, testProduct())

	snap, ok := c.Get(ctx, "WIDGET-1")
	if !ok {
		t.Fatal("Expected hit after Put")
	}
	if snap.Available != 7 || snap.Reserved != 3 || snap.Total != 10 {
		t.Errorf("Expected counters 7/3/10, got %d/%d/%d", snap.Available, snap.Reserved, snap.Total)
	}
	if snap.Version != 4 {
		t.Errorf("Expected version 4, got %d", snap.Version)
	}
}

func TestInventoryCache_Invalidate(t *testing.T) {
	c := NewInventoryCache(kv.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	c.Put(ctx, testProduct())
	c.Invalidate(ctx, "WIDGET-1")

	if _, ok := c.Get(ctx, "WIDGET-1"); ok {
		t.Error("Expected miss after Invalidate")
	}
}

func TestInventoryCache_CorruptEntryDropped(t *testing.T) {
	store := kv.NewMemoryStore()
	c := NewInventoryCache(store, time.Minute)
	ctx := context.Background()

	store.Set(ctx, "inventory:sku:BAD", "{not json", time.Minute)

	if _, ok := c.Get(ctx, "BAD"); ok {
		t.Fatal("Expected corrupt entry to miss")
	}
	if ok, _ := store.Exists(ctx, "inventory:sku:BAD"); ok {
		t.Error("Expected corrupt entry to be removed")
	}
}
