// Package router registers the HTTP routes of the ledger API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration-ledger/internal/handler"
	"github.com/iliyamo/event-registration-ledger/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterLedger registers the registration ledger under /v1.  Every route
// requires a valid access token; limiter runs after authentication so that
// buckets can be keyed by owner.
func RegisterLedger(e *echo.Echo, h *handler.LedgerHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	if limiter != nil {
		g.Use(limiter)
	}

	g.POST("/registrations", h.Register)
	g.GET("/registrations/:id", h.GetReference)
	g.DELETE("/registrations/:id", h.Cancel)
	g.GET("/my-events", h.ListMyEvents)
}
