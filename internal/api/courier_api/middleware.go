package courier_api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/CourierBox/internal/cache/rediscache"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (rediscache.Decision, error)
}

// throttle limits mutations per courier per minute. The limiter failing open
// keeps the courier working when redis is down.
func (a *CourierAPI) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil || a.mutationLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := "mutations:" + a.courier()
		d, err := a.limiter.Allow(r.Context(), key, a.mutationLimit, time.Minute)
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			writeError(w, http.StatusTooManyRequests, "слишком много действий, попробуйте через минуту")
			slog.Info("courier mutation throttled", "key", key, "count", d.Count)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds up so a client never retries inside the window.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
