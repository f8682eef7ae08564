package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ukydev/fleet-backoffice/internal/httpx"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health answers liveness checks. With a database pinger it reports 503
// while the database is unreachable.
func Health(pinger Pinger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":    "success",
			"message":   "Server is running",
			"timestamp": now().UTC().Format(time.RFC3339),
		}
		if pinger == nil {
			httpx.JSON(w, http.StatusOK, body)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			body["status"] = "error"
			body["database"] = "unreachable"
			httpx.JSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
		httpx.JSON(w, http.StatusOK, body)
	}
}
