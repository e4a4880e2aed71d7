// Package service orchestrates customer-facing reservation requests.  It
// combines the idempotency coordinator with per-line calls into the
// inventory state machine and owns the PENDING to CONFIRMED / CANCELLED /
// EXPIRED lifecycle.  Status transitions in the store are conditional on
// PENDING, so terminal states are sticky under concurrent callers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adityamehta/reservation-inventory/internal/idempotency"
	"github.com/adityamehta/reservation-inventory/internal/model"
	"github.com/adityamehta/reservation-inventory/internal/queue"
	"github.com/adityamehta/reservation-inventory/internal/repository"
)

// DefaultReservationTTL is how long a PENDING reservation may hold
// inventory before it is eligible for expiry.
const DefaultReservationTTL = 15 * time.Minute

// Lifecycle errors.  Lookup misses surface repository.ErrNotFound.
var (
	// ErrCustomerNotFound means the reservation names a customer that does
	// not exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrInvalidState means the requested transition is illegal for the
	// reservation's current status, e.g. confirming a CANCELLED
	// reservation or cancelling a CONFIRMED one.
	ErrInvalidState = errors.New("invalid reservation state")

	// ErrReservationExpired means the reservation's deadline has passed;
	// it has been (or is being) transitioned to EXPIRED.
	ErrReservationExpired = errors.New("reservation expired")
)

// LineFailure reports which SKUs made a multi-line inventory operation
// fail.  Unwrap exposes the underlying per-line errors so callers can
// still match inventory sentinels with errors.Is.
type LineFailure struct {
	Op   string   // "reserve" or "confirm"
	SKUs []string // SKUs whose inventory call failed
	Errs []error  // underlying errors, same order as SKUs
}

func (e *LineFailure) Error() string {
	return fmt.Sprintf("%s failed for SKUs [%s]: %v", e.Op, strings.Join(e.SKUs, " "), e.Errs[0])
}

func (e *LineFailure) Unwrap() []error { return e.Errs }

// ReservationStore is the persistence port for reservations.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Reservation, error)
	FindExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Reservation, error)
	// Transition moves PENDING to a terminal status; false means another
	// caller transitioned the reservation first.
	Transition(ctx context.Context, id uuid.UUID, to string, at time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CustomerStore is the lookup port for customers.
type CustomerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
}

// Inventory is the slice of the inventory state machine the lifecycle
// drives, one call per line item.
type Inventory interface {
	Reserve(ctx context.Context, sku string, qty int) error
	Confirm(ctx context.Context, sku string, qty int) error
	Release(ctx context.Context, sku string, qty int) error
}

// Coordinator deduplicates create requests that share an idempotency key.
type Coordinator interface {
	Execute(ctx context.Context, key string, op idempotency.Operation) ([]byte, error)
}

// EventPublisher sends lifecycle events to the broker.  Publishing is
// best-effort everywhere in this package: failures are logged, never
// propagated.
type EventPublisher interface {
	Publish(ctx context.Context, queueName string, event any) error
}

// ReservationView is the caller-facing representation of a reservation.
// It is also the exact payload the idempotency coordinator stores and
// replays, so it must marshal deterministically from a reservation row.
type ReservationView struct {
	ID          string                  `json:"id"`
	CustomerID  string                  `json:"customer_id"`
	Status      string                  `json:"status"`
	Lines       []model.ReservationLine `json:"lines"`
	CreatedAt   time.Time               `json:"created_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
	ConfirmedAt *time.Time              `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time              `json:"cancelled_at,omitempty"`
}

func viewOf(res *model.Reservation) *ReservationView {
	return &ReservationView{
		ID:          res.ID.String(),
		CustomerID:  res.CustomerID.String(),
		Status:      res.Status,
		Lines:       res.Lines,
		CreatedAt:   res.CreatedAt,
		ExpiresAt:   res.ExpiresAt,
		ConfirmedAt: res.ConfirmedAt,
		CancelledAt: res.CancelledAt,
	}
}

// ReservationService is the reservation lifecycle manager.
type ReservationService struct {
	reservations ReservationStore
	customers    CustomerStore
	inventory    Inventory
	coordinator  Coordinator
	events       EventPublisher
	ttl          time.Duration
	now          func() time.Time
}

// NewReservationService wires the lifecycle manager to its collaborators.
// A zero ttl selects DefaultReservationTTL.
func NewReservationService(
	reservations ReservationStore,
	customers CustomerStore,
	inv Inventory,
	coordinator Coordinator,
	events EventPublisher,
	ttl time.Duration,
) *ReservationService {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &ReservationService{
		reservations: reservations,
		customers:    customers,
		inventory:    inv,
		coordinator:  coordinator,
		events:       events,
		ttl:          ttl,
		now:          time.Now,
	}
}

// CreateReservation reserves inventory for every line, all-or-nothing,
// deduplicated through the idempotency coordinator: concurrent or
// repeated calls with the same customer and lines execute once and all
// receive the same view.
func (s *ReservationService) CreateReservation(ctx context.Context, customerID uuid.UUID, lines []model.ReservationLine) (*ReservationView, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	key := idempotency.Key(customerID.String(), lines)
	raw, err := s.coordinator.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return s.executeCreate(ctx, customerID, lines)
	})
	if err != nil {
		return nil, err
	}

	var view ReservationView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("reservation: decode stored response: %w", err)
	}
	return &view, nil
}

// executeCreate is the side-effecting unit of work the coordinator runs
// exactly once per key.  On any line failure it releases what it already
// reserved (best-effort, every failure logged) and deletes the
// reservation row so nothing abandoned survives the rollback.
func (s *ReservationService) executeCreate(ctx context.Context, customerID uuid.UUID, lines []model.ReservationLine) ([]byte, error) {
	now := s.now().UTC()
	res := &model.Reservation{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     model.StatusPending,
		Lines:      lines,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		return nil, err
	}

	for i, line := range lines {
		if err := s.inventory.Reserve(ctx, line.SKU, line.Quantity); err != nil {
			s.releaseLines(ctx, res.ID, lines[:i])
			if delErr := s.reservations.Delete(ctx, res.ID); delErr != nil {
				log.Printf("reservation %s: delete after failed create: %v", res.ID, delErr)
			}
			return nil, &LineFailure{Op: "reserve", SKUs: []string{line.SKU}, Errs: []error{err}}
		}
	}

	return json.Marshal(viewOf(res))
}

// ConfirmReservation converts the reservation's reserved units into sold
// units and marks it CONFIRMED.  Terminal states behave per the state
// machine: CONFIRMED is an idempotent no-op, CANCELLED is a hard error,
// and a passed deadline expires the reservation before failing.
func (s *ReservationService) ConfirmReservation(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case model.StatusConfirmed:
		return viewOf(res), nil
	case model.StatusCancelled:
		return nil, fmt.Errorf("reservation %s is cancelled: %w", id, ErrInvalidState)
	case model.StatusExpired:
		return nil, fmt.Errorf("reservation %s: %w", id, ErrReservationExpired)
	}

	now := s.now().UTC()
	if now.After(res.ExpiresAt) {
		s.expire(ctx, res)
		return nil, fmt.Errorf("reservation %s: %w", id, ErrReservationExpired)
	}

	var confirmed []string
	for _, line := range res.Lines {
		if err := s.inventory.Confirm(ctx, line.SKU, line.Quantity); err != nil {
			// Some lines are already sold at the inventory layer while the
			// reservation stays PENDING.  That window is handed to a
			// manual-intervention queue; it is never resolved silently.
			s.publishReconcile(ctx, res, confirmed, []string{line.SKU})
			return nil, &LineFailure{Op: "confirm", SKUs: []string{line.SKU}, Errs: []error{err}}
		}
		confirmed = append(confirmed, line.SKU)
	}

	moved, err := s.reservations.Transition(ctx, id, model.StatusConfirmed, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Every line is confirmed but another caller transitioned the row
		// mid-operation (reaper or a duplicate confirm).
		current, err := s.reservations.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == model.StatusConfirmed {
			return viewOf(current), nil
		}
		s.publishReconcile(ctx, res, confirmed, nil)
		if current.Status == model.StatusExpired {
			return nil, fmt.Errorf("reservation %s: %w", id, ErrReservationExpired)
		}
		return nil, fmt.Errorf("reservation %s is %s: %w", id, current.Status, ErrInvalidState)
	}

	res.Status = model.StatusConfirmed
	res.ConfirmedAt = &now
	s.publish(ctx, queue.QueueReservationConfirmed, queue.ReservationConfirmedEvent{
		ReservationID: res.ID.String(),
		CustomerID:    res.CustomerID.String(),
		Lines:         res.Lines,
		ConfirmedAt:   now.Format(time.RFC3339),
	})
	return viewOf(res), nil
}

// CancelReservation releases the reservation's held units and marks it
// CANCELLED.  Cancelling a CONFIRMED reservation is forbidden; cancelling
// a reservation already in CANCELLED or EXPIRED returns the current view
// unchanged.
func (s *ReservationService) CancelReservation(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case model.StatusConfirmed:
		return nil, fmt.Errorf("reservation %s is confirmed: %w", id, ErrInvalidState)
	case model.StatusCancelled, model.StatusExpired:
		return viewOf(res), nil
	}

	s.releaseLines(ctx, res.ID, res.Lines)

	now := s.now().UTC()
	moved, err := s.reservations.Transition(ctx, id, model.StatusCancelled, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := s.reservations.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == model.StatusConfirmed {
			return nil, fmt.Errorf("reservation %s is confirmed: %w", id, ErrInvalidState)
		}
		return viewOf(current), nil
	}

	res.Status = model.StatusCancelled
	res.CancelledAt = &now
	return viewOf(res), nil
}

// GetReservation returns the current view of a reservation.
func (s *ReservationService) GetReservation(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return viewOf(res), nil
}

// ListReservations returns every reservation owned by the customer.
func (s *ReservationService) ListReservations(ctx context.Context, customerID uuid.UUID) ([]*ReservationView, error) {
	all, err := s.reservations.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	views := make([]*ReservationView, len(all))
	for i, res := range all {
		views[i] = viewOf(res)
	}
	return views, nil
}

// expire releases the reservation's lines and transitions it to EXPIRED.
// Used by the reaper and by confirm attempts on stale reservations.  Line
// releases are best-effort; the conditional transition guarantees only
// one caller wins even when reaper and a customer race.
func (s *ReservationService) expire(ctx context.Context, res *model.Reservation) {
	s.releaseLines(ctx, res.ID, res.Lines)

	now := s.now().UTC()
	moved, err := s.reservations.Transition(ctx, res.ID, model.StatusExpired, now)
	if err != nil {
		log.Printf("reservation %s: expire transition: %v", res.ID, err)
		return
	}
	if !moved {
		return
	}
	res.Status = model.StatusExpired
	res.CancelledAt = &now
	s.publish(ctx, queue.QueueReservationExpired, queue.ReservationExpiredEvent{
		ReservationID: res.ID.String(),
		CustomerID:    res.CustomerID.String(),
		Lines:         res.Lines,
		ExpiredAt:     now.Format(time.RFC3339),
	})
}

// releaseLines returns each line's units to the available pool.  Each
// release failure is logged and the loop continues: one faulty SKU must
// not block rollback of the rest.
func (s *ReservationService) releaseLines(ctx context.Context, id uuid.UUID, lines []model.ReservationLine) {
	for _, line := range lines {
		if err := s.inventory.Release(ctx, line.SKU, line.Quantity); err != nil {
			log.Printf("reservation %s: release %d x %s: %v", id, line.Quantity, line.SKU, err)
		}
	}
}

func (s *ReservationService) publishReconcile(ctx context.Context, res *model.Reservation, confirmed, failed []string) {
	s.publish(ctx, queue.QueueReservationReconcile, queue.ReservationReconcileEvent{
		ReservationID: res.ID.String(),
		CustomerID:    res.CustomerID.String(),
		ConfirmedSKUs: confirmed,
		FailedSKUs:    failed,
		OccurredAt:    s.now().UTC().Format(time.RFC3339),
	})
}

func (s *ReservationService) publish(ctx context.Context, queueName string, event any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, queueName, event); err != nil {
		log.Printf("reservation: publish %s: %v", queueName, err)
	}
}
