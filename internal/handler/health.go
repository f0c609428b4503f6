package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Root answers GET / with a fixed plaintext greeting.
func Root(c echo.Context) error {
	return c.String(http.StatusOK, "Hello, World!")
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the database answers.
type HealthHandler struct {
	DB Pinger
}

// Health is a health-check endpoint used by load balancers and monitoring
// systems.  It returns plaintext "ok" when the pool can reach the database
// and 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		return c.String(http.StatusServiceUnavailable, "unavailable")
	}
	return c.String(http.StatusOK, "ok")
}
