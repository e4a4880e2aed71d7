package model

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a stock-keeping unit and its inventory counters as
// stored in the `products` table.  The three counters obey the invariant
// available + reserved == total after every committed write; units that
// have been confirmed (sold) leave reserved without returning to
// available.  Version is a monotonic counter used for optimistic
// concurrency: every successful update increments it, and writers must
// present the version they read or the write is rejected.
//
// Fields:
//  ID        – primary key identifier (UUID).
//  SKU       – unique stock-keeping unit code.
//  Name      – human readable product name.
//  Total     – total units managed for this SKU.
//  Available – units free to reserve.
//  Reserved  – units held by PENDING reservations.
//  Version   – optimistic concurrency counter.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type Product struct {
	ID        uuid.UUID // products.id
	SKU       string    // products.sku
	Name      string    // products.name
	Total     int       // products.total
	Available int       // products.available
	Reserved  int       // products.reserved
	Version   int64     // products.version
	CreatedAt time.Time // products.created_at
	UpdatedAt time.Time // products.updated_at
}
