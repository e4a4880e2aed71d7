package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/adityamehta/reservation-inventory/internal/idempotency"
	"github.com/adityamehta/reservation-inventory/internal/inventory"
	"github.com/adityamehta/reservation-inventory/internal/lock"
	"github.com/adityamehta/reservation-inventory/internal/model"
	"github.com/adityamehta/reservation-inventory/internal/repository"
	"github.com/adityamehta/reservation-inventory/internal/service"
)

// ReservationHandler exposes the reservation lifecycle over HTTP.
type ReservationHandler struct {
	Reservations *service.ReservationService
}

func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{Reservations: svc}
}

type createReservationReq struct {
	Lines []model.ReservationLine `json:"lines"`
}

// customerID extracts the authenticated customer injected by the JWT
// middleware.
func customerID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get("customer_id").(uuid.UUID)
	return id, ok
}

// Create places a reservation for the authenticated customer.  Identical
// requests, concurrent or repeated, converge on a single reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
	cid, ok := customerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createReservationReq
	if err := c.Bind(&req); err != nil || len(req.Lines) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lines required"})
	}
	for _, ln := range req.Lines {
		if ln.SKU == "" || ln.Quantity <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "each line needs a sku and a positive quantity"})
		}
	}

	view, err := h.Reservations.CreateReservation(c.Request().Context(), cid, req.Lines)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

// Confirm finalizes a PENDING reservation.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	view, err := h.forOwner(c, h.Reservations.ConfirmReservation)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Cancel voids a PENDING reservation and returns its units to the pool.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	view, err := h.forOwner(c, h.Reservations.CancelReservation)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Get returns one reservation belonging to the caller.
func (h *ReservationHandler) Get(c echo.Context) error {
	view, err := h.forOwner(c, h.Reservations.GetReservation)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// List returns all of the caller's reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	cid, ok := customerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	views, err := h.Reservations.ListReservations(c.Request().Context(), cid)
	if err != nil {
		return reservationError(c, err)
	}
	if views == nil {
		views = []*service.ReservationView{}
	}
	return c.JSON(http.StatusOK, views)
}

// forOwner parses the :id param, verifies the reservation belongs to the
// caller, then runs op.  A mismatch is reported as not found to avoid
// leaking other customers' reservation IDs.
func (h *ReservationHandler) forOwner(
	c echo.Context,
	op func(ctx context.Context, id uuid.UUID) (*service.ReservationView, error),
) (*service.ReservationView, error) {
	cid, ok := customerID(c)
	if !ok {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx := c.Request().Context()

	view, err := h.Reservations.GetReservation(ctx, id)
	if err != nil {
		return nil, reservationError(c, err)
	}
	if view.CustomerID != cid.String() {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}

	view, err = op(ctx, id)
	if err != nil {
		return nil, reservationError(c, err)
	}
	return view, nil
}

// reservationError maps lifecycle failures onto HTTP statuses.
func reservationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, service.ErrCustomerNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrReservationExpired),
		errors.Is(err, inventory.ErrInsufficientInventory),
		errors.Is(err, inventory.ErrInsufficientReserved),
		errors.Is(err, repository.ErrConcurrentModification):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, idempotency.ErrConcurrentProcessingUnresolved),
		errors.Is(err, lock.ErrLockTimeout):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "reservation system busy, retry later"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation operation failed"})
	}
}
