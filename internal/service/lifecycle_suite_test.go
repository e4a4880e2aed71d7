package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/adityamehta/reservation-inventory/internal/cache"
	"github.com/adityamehta/reservation-inventory/internal/idempotency"
	"github.com/adityamehta/reservation-inventory/internal/inventory"
	"github.com/adityamehta/reservation-inventory/internal/kv"
	"github.com/adityamehta/reservation-inventory/internal/lock"
	"github.com/adityamehta/reservation-inventory/internal/model"
	"github.com/adityamehta/reservation-inventory/internal/repository"
)

// memProducts backs the real inventory engine in the suite with the
// same version-guarded semantics the SQL repository provides.
type memProducts struct {
	mu    sync.Mutex
	bySKU map[string]*model.Product
}

func newMemProducts() *memProducts {
	return &memProducts{bySKU: make(map[string]*model.Product)}
}

func (m *memProducts) add(sku string, total, available, reserved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySKU[sku] = &model.Product{
		ID:        uuid.New(),
		SKU:       sku,
		Name:      sku,
		Total:     total,
		Available: available,
		Reserved:  reserved,
	}
}

func (m *memProducts) snapshot(sku string) model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bySKU[sku]
}

func (m *memProducts) GetBySKU(_ context.Context, sku string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.bySKU[sku]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) GetBySKUs(_ context.Context, skus []string) ([]*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Product
	for _, sku := range skus {
		if p, ok := m.bySKU[sku]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memProducts) UpdateCounts(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bySKU[p.SKU]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != p.Version {
		return repository.ErrConcurrentModification
	}
	cur.Total = p.Total
	cur.Available = p.Available
	cur.Reserved = p.Reserved
	cur.Version++
	p.Version = cur.Version
	return nil
}

// LifecycleSuite runs the reservation flow end to end: real inventory
// engine, real distributed locks, real idempotency coordinator, all
// over a single in-memory key-value store.
type LifecycleSuite struct {
	suite.Suite

	products   *memProducts
	store      *memReservations
	publisher  *capturePublisher
	svc        *ReservationService
	customerID uuid.UUID
}

func (s *LifecycleSuite) SetupTest() {
	s.products = newMemProducts()
	s.products.add("WIDGET", 10, 10, 0)
	s.products.add("GADGET", 4, 4, 0)

	mem := kv.NewMemoryStore()
	locks := lock.NewWithOptions(mem, time.Minute, time.Millisecond, 50)
	inv := inventory.NewService(s.products, locks, cache.NewInventoryCache(mem, 30*time.Minute))

	coord := idempotency.NewCoordinator(mem, idempotency.Config{
		PollInterval: time.Millisecond,
		WaitTimeout:  time.Second,
	})

	s.customerID = uuid.New()
	customers := &memCustomers{byID: map[uuid.UUID]*model.Customer{
		s.customerID: {ID: s.customerID, Email: "sam@example.com", Name: "Sam"},
	}}

	s.store = newMemReservations()
	s.publisher = &capturePublisher{}
	s.svc = NewReservationService(s.store, customers, inv, coord, s.publisher, 15*time.Minute)
}

func (s *LifecycleSuite) TestReserveConfirmFlow() {
	ctx := context.Background()
	lines := []model.ReservationLine{
		{SKU: "WIDGET", Quantity: 4},
		{SKU: "GADGET", Quantity: 2},
	}

	view, err := s.svc.CreateReservation(ctx, s.customerID, lines)
	s.Require().NoError(err)
	s.Equal(model.StatusPending, view.Status)

	widget := s.products.snapshot("WIDGET")
	s.Equal(6, widget.Available)
	s.Equal(4, widget.Reserved)

	confirmed, err := s.svc.ConfirmReservation(ctx, uuid.MustParse(view.ID))
	s.Require().NoError(err)
	s.Equal(model.StatusConfirmed, confirmed.Status)

	widget = s.products.snapshot("WIDGET")
	s.Equal(6, widget.Available)
	s.Equal(0, widget.Reserved)
	s.Equal(10, widget.Total)

	s.Len(s.publisher.byQueue("reservation.confirmed"), 1)
}

func (s *LifecycleSuite) TestReserveCancelRestoresAvailability() {
	ctx := context.Background()
	lines := []model.ReservationLine{{SKU: "GADGET", Quantity: 3}}

	view, err := s.svc.CreateReservation(ctx, s.customerID, lines)
	s.Require().NoError(err)
	s.Equal(1, s.products.snapshot("GADGET").Available)

	cancelled, err := s.svc.CancelReservation(ctx, uuid.MustParse(view.ID))
	s.Require().NoError(err)
	s.Equal(model.StatusCancelled, cancelled.Status)

	gadget := s.products.snapshot("GADGET")
	s.Equal(4, gadget.Available)
	s.Equal(0, gadget.Reserved)
}

func (s *LifecycleSuite) TestOverdrawRollsBackEarlierLines() {
	ctx := context.Background()
	lines := []model.ReservationLine{
		{SKU: "WIDGET", Quantity: 4},
		{SKU: "GADGET", Quantity: 5}, // only 4 exist
	}

	_, err := s.svc.CreateReservation(ctx, s.customerID, lines)
	s.Require().Error(err)
	s.True(errors.Is(err, inventory.ErrInsufficientInventory))

	// All-or-nothing: the WIDGET hold is rolled back and no row remains.
	widget := s.products.snapshot("WIDGET")
	s.Equal(10, widget.Available)
	s.Equal(0, widget.Reserved)
	s.Equal(0, s.store.count())
}

func (s *LifecycleSuite) TestConcurrentCreatesNeverOversell() {
	ctx := context.Background()

	// 8 distinct customers race for 4 gadgets, 1 each: exactly 4 win.
	customers := &memCustomers{byID: map[uuid.UUID]*model.Customer{}}
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
		customers.byID[ids[i]] = &model.Customer{ID: ids[i]}
	}
	s.svc.customers = customers

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = s.svc.CreateReservation(ctx, id, []model.ReservationLine{{SKU: "GADGET", Quantity: 1}})
		}(i, id)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			s.True(errors.Is(err, inventory.ErrInsufficientInventory), "unexpected error: %v", err)
		}
	}
	s.Equal(4, won)

	gadget := s.products.snapshot("GADGET")
	s.Equal(0, gadget.Available)
	s.Equal(4, gadget.Reserved)
}

func (s *LifecycleSuite) TestReaperReturnsExpiredUnits() {
	ctx := context.Background()
	lines := []model.ReservationLine{{SKU: "WIDGET", Quantity: 7}}

	view, err := s.svc.CreateReservation(ctx, s.customerID, lines)
	s.Require().NoError(err)
	s.Equal(3, s.products.snapshot("WIDGET").Available)

	s.svc.now = func() time.Time { return view.ExpiresAt.Add(time.Minute) }

	n, err := NewReaper(s.svc, time.Minute, 100).Sweep(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	widget := s.products.snapshot("WIDGET")
	s.Equal(10, widget.Available)
	s.Equal(0, widget.Reserved)

	got, err := s.svc.GetReservation(ctx, uuid.MustParse(view.ID))
	s.Require().NoError(err)
	s.Equal(model.StatusExpired, got.Status)
	s.Len(s.publisher.byQueue("reservation.expired"), 1)
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}
