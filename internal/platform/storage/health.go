package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is the part of a backend the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

type statsReporter interface {
	Stats() any
}

// HealthHandler pings the backend and reports its state, plus connection
// pool statistics when the backend has them.
func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{
			"status":  "healthy",
			"backend": p.Name(),
		}
		if s, ok := p.(statsReporter); ok {
			body["pool"] = s.Stats()
		}
		if err := p.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
