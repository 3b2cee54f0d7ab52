// Package router defines how the admin HTTP routes are registered.
package router

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/handler" // import the handlers that implement the endpoints
)

// RegisterRoutes registers the admin surface on the provided Echo instance.
// The /healthz endpoint can be used by load balancers or monitoring systems
// to verify that the service is up; /v1/venues exposes aggregated reservation
// counts per venue for operators.
func RegisterRoutes(e *echo.Echo, a *handler.AdminHandler) {
	e.GET("/healthz", a.Health)
	e.GET("/v1/venues", a.Venues)
}
