package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/httpx"
)

var ErrTooManyRequests = apperr.New(http.StatusTooManyRequests, "too many requests from this IP, please try again later")

// RateLimitMiddleware limits requests per client IP.
type RateLimitMiddleware struct {
	window time.Duration
}

// NewRateLimitMiddleware creates a rate limiter counting over window.
func NewRateLimitMiddleware(window time.Duration) *RateLimitMiddleware {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimitMiddleware{window: window}
}

// RateLimit allows maxRequests per client IP per window.
func (m *RateLimitMiddleware) RateLimit(maxRequests int) func(http.Handler) http.Handler {
	return httprate.Limit(maxRequests, m.window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return getClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, r, nil, ErrTooManyRequests)
		}),
	)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check for forwarded headers first
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	// Fall back to remote address
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIP is the address recorded in activity logs.
func ClientIP(r *http.Request) string {
	return getClientIP(r)
}
