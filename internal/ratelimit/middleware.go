package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/middleware"
	"github.com/solara-labs/prism-gateway/internal/telemetry"
)

const (
	headerLimitRequests     = "X-RateLimit-Limit-Requests"
	headerRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerResetRequests     = "X-RateLimit-Reset-Requests"
	headerRetryAfter        = "Retry-After"
)

// Middleware enforces a requests-per-minute cap per client, bucketed by the
// hash of the client's first submitted credential. Requests without
// credentials pass through; the extraction middleware rejects those.
func Middleware(limiter *Limiter, rpm int, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := middleware.CredentialsFromContext(r.Context())
			if !ok || rpm <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			bucket := apierror.HashKey(creds.Keys[0])
			result, _ := limiter.Check(r.Context(), bucket, int64(rpm), time.Minute)

			w.Header().Set(headerLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerResetRequests, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				reqID := middleware.RequestIDFromContext(r.Context())
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"client", apierror.MaskKey(creds.Keys[0]),
					"limit_rpm", rpm,
				)
				if metrics != nil {
					metrics.RateLimitHits.Inc()
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				env := apierror.RateLimited("Rate limit exceeded: " + strconv.Itoa(rpm) + " requests per minute")
				apierror.Write(w, creds.Protocol, reqID, env)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
