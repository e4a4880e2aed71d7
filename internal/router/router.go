package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/adityamehta/reservation-inventory/internal/handler"    // import the handlers that implement business logic
	"github.com/adityamehta/reservation-inventory/internal/middleware" // import middleware for JWT authentication
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication routes and the protected /v1/me
// endpoint.  Unauthenticated operations live under /v1/auth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterProducts registers the catalog and availability endpoints.
// Availability checks are public so storefronts can render stock levels
// without a session; catalog mutations require a valid access token.
func RegisterProducts(e *echo.Echo, p *handler.ProductHandler, jwtSecret string) {
	// Public read surface.
	e.GET("/v1/products", p.List)
	e.GET("/v1/products/:sku", p.Get)
	e.GET("/v1/products/:sku/availability", p.Availability)
	e.POST("/v1/products/availability", p.BatchAvailability)

	// Mutations live behind JWT auth.
	g := e.Group("/v1/products")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.POST("", p.Create)
	g.POST("/batch", p.BatchCreate)
	g.PATCH("/:sku/inventory", p.AdminUpdate)
}

// RegisterReservations registers the reservation lifecycle endpoints.
// Every route requires a valid access token; the reservation is always
// scoped to the authenticated customer.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, jwtSecret string) {
	g := e.Group("/v1/reservations")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.POST("", r.Create)
	g.GET("", r.List)
	g.GET("/:id", r.Get)
	g.POST("/:id/confirm", r.Confirm)
	g.POST("/:id/cancel", r.Cancel)
}
