// Package quota enforces fixed-window request quotas per tenant.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/discern/internal/domain"
)

const counterKey = "quota:requests"

// Limiter counts requests per tenant using the cache's window counters.
type Limiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewLimiter creates a limiter. It returns nil when the quota is disabled:
// no cache, or a non-positive limit. A nil *Limiter allows everything.
func NewLimiter(cache domain.Cache, cfg domain.QuotaConfig) *Limiter {
	if cache == nil || cfg.RequestsPerWindow <= 0 {
		return nil
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cache: cache, limit: cfg.RequestsPerWindow, window: window}
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return l.limit
}

// Allow counts one request for tenantID and reports whether it fits the
// quota, along with how many requests remain in the current window.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (bool, int64, error) {
	if l == nil {
		return true, 0, nil
	}
	if tenantID == "" {
		return false, 0, fmt.Errorf("quota: tenantID is required")
	}

	count, err := l.cache.IncrementCounter(ctx, tenantID, counterKey, l.window)
	if err != nil {
		return false, 0, fmt.Errorf("quota: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.limit, remaining, nil
}

// Middleware rejects requests over quota with 429. tenantOf extracts the
// tenant from the request. Counter failures let the request through.
func (l *Limiter) Middleware(tenantOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := tenantOf(r)
			ok, remaining, err := l.Allow(r.Context(), tenantID)
			if err != nil {
				slog.Warn("quota check failed",
					"tenant_id", tenantID,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
