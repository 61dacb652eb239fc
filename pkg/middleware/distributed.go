package middleware

import (
	"net/http"

	"github.com/fdicloud/taxbot-backend/pkg/httputil"
	"github.com/fdicloud/taxbot-backend/pkg/ratelimit"
)

// Distributed returns a wrapper enforcing the Redis-backed shared tiers
// (penalty and per-category IP quota) for a category. It is meant to run in
// front of the process-local middleware in multi-instance deployments: the
// shared tier catches abuse spread across instances, the local tier keeps
// the sub-second burst checks off the network. When Redis is unreachable
// the wrapper passes every request through.
func Distributed(limiter *ratelimit.RedisLimiter, category ratelimit.Category, platformIPHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.ClientIP(r, platformIPHeader)
			decision := limiter.Evaluate(r.Context(), ip, category)
			if !decision.Allowed {
				decision.Apply(w.Header())
				httputil.WriteRateLimited(w, string(decision.Reason), decision.Reason.Message(), decision.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
