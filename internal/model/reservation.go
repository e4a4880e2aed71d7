package model

import (
	"time"

	"github.com/google/uuid"
)

// Reservation status values.  A reservation is created PENDING and moves
// to exactly one of the terminal states; no transition ever leaves a
// terminal state.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// Reservation records a customer's hold on one or more products.  It
// aggregates the line items reserved under a single request and tracks
// the lifecycle status together with the timestamps of each transition.
// ExpiresAt bounds how long a PENDING reservation may hold inventory
// before the reaper releases it.
//
// Fields:
//  ID          – primary key identifier (UUID).
//  CustomerID  – customer who owns the reservation.
//  Status      – PENDING, CONFIRMED, CANCELLED or EXPIRED.
//  Lines       – reserved (sku, quantity) pairs, in request order.
//  CreatedAt   – creation timestamp.
//  ExpiresAt   – deadline after which a PENDING reservation expires.
//  ConfirmedAt – when the reservation was confirmed (nullable).
//  CancelledAt – when the reservation was cancelled (nullable).
type Reservation struct {
	ID          uuid.UUID         // reservations.id
	CustomerID  uuid.UUID         // reservations.customer_id
	Status      string            // reservations.status
	Lines       []ReservationLine // reservation_lines rows
	CreatedAt   time.Time         // reservations.created_at
	ExpiresAt   time.Time         // reservations.expires_at
	ConfirmedAt *time.Time        // reservations.confirmed_at (nullable)
	CancelledAt *time.Time        // reservations.cancelled_at (nullable)
}

// ReservationLine is a single (sku, quantity) entry belonging to exactly
// one reservation.  Lines are immutable once the reservation leaves
// PENDING.
//
// Fields:
//  SKU      – stock-keeping unit reserved.
//  Quantity – number of units reserved.
type ReservationLine struct {
	SKU      string `json:"sku"`      // reservation_lines.sku
	Quantity int    `json:"quantity"` // reservation_lines.quantity
}

// Terminal reports whether the reservation sits in a state that no
// transition may leave.
func (r *Reservation) Terminal() bool {
	return r.Status != StatusPending
}
