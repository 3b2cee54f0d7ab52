// Package handler contains the HTTP handlers of the admin surface. The bot
// talks to users over Telegram; this small API exists for load balancers,
// monitoring and operators.
package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/repository"
)

// AdminHandler serves the operational endpoints.
type AdminHandler struct {
	db   *sql.DB
	resv *repository.ReservationRepo
}

// NewAdminHandler wires the handler with its dependencies.
func NewAdminHandler(db *sql.DB, resv *repository.ReservationRepo) *AdminHandler {
	return &AdminHandler{db: db, resv: resv}
}

// Health verifies that the service is running and can reach its database.
// It returns a plain text "ok" with HTTP 200, or 503 when the database
// ping fails.
func (h *AdminHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		return c.String(http.StatusServiceUnavailable, "db unreachable")
	}
	return c.String(http.StatusOK, "ok") // write "ok" with a 200 OK status
}

// Venues returns the aggregated reservation counts per venue as JSON,
// ordered by count descending.
func (h *AdminHandler) Venues(c echo.Context) error {
	stats, err := h.resv.VenueStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load venue stats"})
	}
	return c.JSON(http.StatusOK, stats)
}
