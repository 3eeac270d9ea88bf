package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Readiness reports whether the database is reachable along with a
// snapshot of the connection pool.
type Readiness struct {
	Ready bool      `json:"ready"`
	Error string    `json:"error,omitempty"`
	Pool  PoolUsage `json:"pool"`
}

// PoolUsage is a point-in-time view of pgxpool connection usage.
type PoolUsage struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
}

func poolUsage(pool *pgxpool.Pool) PoolUsage {
	stat := pool.Stat()
	return PoolUsage{
		Total:    stat.TotalConns(),
		Idle:     stat.IdleConns(),
		Acquired: stat.AcquiredConns(),
		Max:      stat.MaxConns(),
	}
}

// ReadyHandler returns a readiness probe that pings the database. It
// answers 503 until a round trip succeeds so load balancers hold
// traffic during startup and database outages.
func ReadyHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, Readiness{
				Ready: false,
				Error: err.Error(),
				Pool:  poolUsage(pool),
			})
		}

		return c.JSON(http.StatusOK, Readiness{
			Ready: true,
			Pool:  poolUsage(pool),
		})
	}
}
