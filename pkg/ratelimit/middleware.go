package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"standings/pkg/logger"
	"standings/pkg/metrics"
)

// ClientIP returns the host part of the request's remote address. Run it
// behind chi's RealIP middleware so proxies' forwarding headers are honoured.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
// Limiter failures let the request through.
func Middleware(l Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			d, err := l.Allow(r.Context(), ip)
			if err != nil {
				log.Error("rate limiter unavailable", err, zap.String("ip", ip))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				metrics.RateLimitRejectedTotal.Inc()
				seconds := int(math.Ceil(d.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "too many requests",
					"retryAfter": seconds,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
