package http

import (
	"net/http"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/cache"
	"github.com/nocturnehq/gatekeep/internal/auth/store"
	"github.com/nocturnehq/gatekeep/pkg/httpx"
)

// ReadyzHandler is the readiness probe; it checks the durable store and
// the cache backend and degrades to 503 when either is unreachable.
func ReadyzHandler(startTime time.Time, version string, st store.Store, c *cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{Database: "ok", Cache: "ok"}
		status := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := c.Ping(r.Context()); err != nil {
			checks.Cache = "error: " + err.Error()
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, healthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
