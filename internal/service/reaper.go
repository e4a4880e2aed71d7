package service

import (
	"context"
	"log"
	"time"

	"github.com/adityamehta/reservation-inventory/internal/model"
)

const (
	// DefaultReapInterval is how often the reaper sweeps for overdue
	// PENDING reservations.
	DefaultReapInterval = 5 * time.Minute

	// DefaultReapBatch bounds how many reservations one sweep processes.
	DefaultReapBatch = 100
)

// Reaper periodically finds PENDING reservations past their deadline,
// releases their held inventory and marks them EXPIRED.  It bypasses the
// idempotency coordinator: expiry is not a customer-triggered operation.
// Each reservation is processed independently, so one failure never
// aborts the sweep for the rest.
type Reaper struct {
	svc      *ReservationService
	interval time.Duration
	batch    int
}

// NewReaper builds a reaper over the lifecycle manager.  Zero interval or
// batch select the defaults.
func NewReaper(svc *ReservationService, interval time.Duration, batch int) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if batch <= 0 {
		batch = DefaultReapBatch
	}
	return &Reaper{svc: svc, interval: interval, batch: batch}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("reaper: running every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("reaper: stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Printf("reaper: sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("reaper: expired %d reservations", n)
			}
		}
	}
}

// Sweep expires every overdue PENDING reservation it can find, up to the
// batch bound, and reports how many it transitioned.  The returned error
// covers only the query; per-reservation failures are logged inside
// expire and do not stop the loop.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.svc.now().UTC()
	due, err := r.svc.reservations.FindExpiredPending(ctx, now, r.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, res := range due {
		r.svc.expire(ctx, res)
		if res.Status == model.StatusExpired {
			expired++
		}
	}
	return expired, nil
}
