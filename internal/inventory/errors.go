package inventory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the inventory state machine.  Callers match them
// with errors.Is; the wrapped forms carry per-SKU detail.  Lookup misses
// and optimistic-version conflicts surface the shared repository
// sentinels (repository.ErrNotFound, repository.ErrConcurrentModification).
var (
	// ErrInsufficientInventory means a reserve asked for more units than
	// are available.  Counters are left unchanged.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrInsufficientReserved means a confirm or release asked for more
	// units than are currently reserved.
	ErrInsufficientReserved = errors.New("insufficient reserved")

	// ErrInvalidCounters means an administrative update would leave the
	// counters negative or push available + reserved past total.
	ErrInvalidCounters = errors.New("invalid inventory counters")
)

func insufficientInventory(sku string, requested, available int) error {
	return fmt.Errorf("sku %s: requested %d, available %d: %w",
		sku, requested, available, ErrInsufficientInventory)
}

func insufficientReserved(sku string, requested, reserved int) error {
	return fmt.Errorf("sku %s: requested %d, reserved %d: %w",
		sku, requested, reserved, ErrInsufficientReserved)
}

func errInvalidCounters(sku string, total, available, reserved int) error {
	return fmt.Errorf("sku %s: total %d, available %d, reserved %d: %w",
		sku, total, available, reserved, ErrInvalidCounters)
}
