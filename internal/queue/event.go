// Package queue defines message payloads exchanged over the message broker
// and a best-effort publisher for them.
package queue

import "github.com/adityamehta/reservation-inventory/internal/model"

// Queue names used on the broker.  Each event type has its own durable queue.
const (
	QueueReservationConfirmed = "reservation.confirmed"
	QueueReservationExpired   = "reservation.expired"
	QueueReservationReconcile = "reservation.reconcile"
)

// ReservationConfirmedEvent is published when a reservation is successfully
// confirmed.  It contains enough information for downstream consumers to
// log, notify, or trigger fulfilment without querying the primary database.
type ReservationConfirmedEvent struct {
	ReservationID string                  `json:"reservation_id"`
	CustomerID    string                  `json:"customer_id"`
	Lines         []model.ReservationLine `json:"lines"`
	ConfirmedAt   string                  `json:"confirmed_at"`
}

// ReservationExpiredEvent is published when the reaper (or a confirm
// attempt on a stale reservation) expires a PENDING reservation and
// returns its units to the available pool.
type ReservationExpiredEvent struct {
	ReservationID string                  `json:"reservation_id"`
	CustomerID    string                  `json:"customer_id"`
	Lines         []model.ReservationLine `json:"lines"`
	ExpiredAt     string                  `json:"expired_at"`
}

// ReservationReconcileEvent is published when a multi-line confirm
// partially fails: some SKUs were confirmed at the inventory layer while
// others were not, and the reservation stays PENDING.  Consumers feed a
// manual-intervention queue; the service never resolves this on its own.
type ReservationReconcileEvent struct {
	ReservationID string   `json:"reservation_id"`
	CustomerID    string   `json:"customer_id"`
	ConfirmedSKUs []string `json:"confirmed_skus"`
	FailedSKUs    []string `json:"failed_skus"`
	OccurredAt    string   `json:"occurred_at"`
}
