package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/adityamehta/reservation-inventory/internal/inventory"
	"github.com/adityamehta/reservation-inventory/internal/lock"
	"github.com/adityamehta/reservation-inventory/internal/model"
	"github.com/adityamehta/reservation-inventory/internal/repository"
)

// ProductHandler bundles the product catalog and the inventory engine.
type ProductHandler struct {
	Products  *repository.ProductRepo
	Inventory *inventory.Service
}

func NewProductHandler(products *repository.ProductRepo, inv *inventory.Service) *ProductHandler {
	return &ProductHandler{Products: products, Inventory: inv}
}

// ----- DTOs -----

type createProductReq struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
}

type adminUpdateReq struct {
	Total     *int `json:"total"`
	Available *int `json:"available"`
	Reserved  *int `json:"reserved"`
}

type batchAvailabilityReq struct {
	SKUs []string `json:"skus"`
}

// Create registers a new product.  An omitted available count defaults to
// the total, i.e. nothing reserved or sold yet.
func (h *ProductHandler) Create(c echo.Context) error {
	var req createProductReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.SKU = strings.TrimSpace(req.SKU)
	if req.SKU == "" || req.Total < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sku required, total must be >= 0"})
	}
	if req.Available == 0 {
		req.Available = req.Total
	}
	if req.Available > req.Total {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "available exceeds total"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p := &model.Product{
		SKU:       req.SKU,
		Name:      req.Name,
		Total:     req.Total,
		Available: req.Available,
	}
	if err := h.Products.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "sku already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create product failed"})
	}
	return c.JSON(http.StatusCreated, p)
}

// BatchCreate registers several products in one call and warms the
// snapshot cache for each.  The batch is not transactional: the response
// reports per-SKU outcomes and a duplicate does not abort the rest.
func (h *ProductHandler) BatchCreate(c echo.Context) error {
	var reqs []createProductReq
	if err := c.Bind(&reqs); err != nil || len(reqs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "non-empty product array required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	type outcome struct {
		SKU   string `json:"sku"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	outcomes := make([]outcome, 0, len(reqs))
	for _, req := range reqs {
		req.SKU = strings.TrimSpace(req.SKU)
		if req.SKU == "" || req.Total < 0 {
			outcomes = append(outcomes, outcome{SKU: req.SKU, Error: "sku required, total must be >= 0"})
			continue
		}
		if req.Available == 0 {
			req.Available = req.Total
		}
		if req.Available > req.Total {
			outcomes = append(outcomes, outcome{SKU: req.SKU, Error: "available exceeds total"})
			continue
		}
		p := &model.Product{SKU: req.SKU, Name: req.Name, Total: req.Total, Available: req.Available}
		if err := h.Products.Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				outcomes = append(outcomes, outcome{SKU: req.SKU, Error: "sku already exists"})
			} else {
				outcomes = append(outcomes, outcome{SKU: req.SKU, Error: "create failed"})
			}
			continue
		}
		// Read-through warms the snapshot cache for the new SKU.
		_, _ = h.Inventory.CheckAvailability(ctx, req.SKU)
		outcomes = append(outcomes, outcome{SKU: req.SKU, OK: true})
	}
	return c.JSON(http.StatusMultiStatus, echo.Map{"results": outcomes})
}

// List returns the whole catalog with live counters.
func (h *ProductHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	products, err := h.Products.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list products failed"})
	}
	return c.JSON(http.StatusOK, products)
}

// Get returns a single product row by SKU.
func (h *ProductHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Products.GetBySKU(ctx, c.Param("sku"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load product failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// AdminUpdate overwrites selected counters under the SKU lock.  Partial
// bodies touch only the fields they name.
func (h *ProductHandler) AdminUpdate(c echo.Context) error {
	var req adminUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Total == nil && req.Available == nil && req.Reserved == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no counters to update"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sku := c.Param("sku")
	if err := h.Inventory.AdminUpdate(ctx, sku, req.Total, req.Available, req.Reserved); err != nil {
		return inventoryError(c, err)
	}

	p, err := h.Products.GetBySKU(ctx, sku)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load product failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Availability returns the purchasable count for one SKU, served from the
// snapshot cache when warm.
func (h *ProductHandler) Availability(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sku := c.Param("sku")
	available, err := h.Inventory.CheckAvailability(ctx, sku)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "availability check failed"})
	}
	return c.JSON(http.StatusOK, inventory.Availability{SKU: sku, Available: available})
}

// BatchAvailability returns counts for many SKUs at once.  Unknown SKUs
// report zero instead of failing the batch.
func (h *ProductHandler) BatchAvailability(c echo.Context) error {
	var req batchAvailabilityReq
	if err := c.Bind(&req); err != nil || len(req.SKUs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "skus required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Inventory.CheckBatchAvailability(ctx, req.SKUs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "availability check failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"availability": out})
}

// inventoryError maps inventory engine failures onto HTTP statuses shared
// by the product and reservation surfaces.
func inventoryError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	case errors.Is(err, inventory.ErrInvalidCounters):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, inventory.ErrInsufficientInventory),
		errors.Is(err, inventory.ErrInsufficientReserved),
		errors.Is(err, repository.ErrConcurrentModification):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, lock.ErrLockTimeout):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "inventory busy, retry later"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "inventory operation failed"})
	}
}
