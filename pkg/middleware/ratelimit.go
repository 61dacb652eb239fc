package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/async"
	"github.com/fdicloud/taxbot-backend/pkg/contextkeys"
	"github.com/fdicloud/taxbot-backend/pkg/httputil"
	"github.com/fdicloud/taxbot-backend/pkg/observability"
	"github.com/fdicloud/taxbot-backend/pkg/ratelimit"
	"github.com/fdicloud/taxbot-backend/pkg/users"
)

// RateLimitMiddleware wraps handlers with the multi-tier limiter. One
// instance is shared across all routes so every category sees the same
// penalty and burst state.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	logger  *observability.Logger
}

// NewRateLimitMiddleware builds middleware around limiter.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, logger *observability.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Handler returns a wrapper enforcing the category's limits for anonymous
// traffic. The monthly user tier is skipped.
func (m *RateLimitMiddleware) Handler(category ratelimit.Category) func(http.Handler) http.Handler {
	return m.handler(category, false)
}

// Authenticated returns a wrapper that additionally consumes the monthly
// question quota of the principal placed in the request context by an
// upstream auth step. Requests with no principal fall back to the IP tiers
// only.
func (m *RateLimitMiddleware) Authenticated(category ratelimit.Category) func(http.Handler) http.Handler {
	return m.handler(category, true)
}

func (m *RateLimitMiddleware) handler(category ratelimit.Category, authenticated bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			opts := ratelimit.CheckOptions{Category: category}
			if authenticated {
				opts.UserID = contextkeys.GetUserID(r.Context())
			}

			decision, err := m.limiter.Evaluate(r.Context(), r, opts)
			if errors.Is(err, users.ErrUserNotFound) {
				httputil.WriteNotFoundError(w, "user not found")
				return
			}

			decision.Apply(w.Header())

			if !decision.Allowed {
				m.logViolation(r, category, decision)
				httputil.WriteRateLimited(w, string(decision.Reason), decision.Reason.Message(), decision.RetryAfter)
				return
			}

			ctx := contextkeys.WithClientIP(r.Context(), decision.ClientIP)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// logViolation records the rejection off the request path so a slow log sink
// never adds latency to the 429.
func (m *RateLimitMiddleware) logViolation(r *http.Request, category ratelimit.Category, decision ratelimit.Decision) {
	method, path := r.Method, r.URL.Path
	async.SafeGoNoError(context.Background(), 5*time.Second, "ratelimit-violation-log", func(ctx context.Context) {
		m.logger.WithField("client_ip", decision.ClientIP).
			WithField("category", string(category)).
			WithField("reason", string(decision.Reason)).
			WithField("retry_after", decision.RetryAfter).
			WithField("violation_count", decision.ViolationCount).
			WithField("method", method).
			WithField("path", path).
			Warn("request rejected by rate limiter")
	})
}

// General wraps next with the general category limits.
func (m *RateLimitMiddleware) General(next http.Handler) http.Handler {
	return m.Handler(ratelimit.CategoryGeneral)(next)
}

// Signup wraps next with the signup category limits.
func (m *RateLimitMiddleware) Signup(next http.Handler) http.Handler {
	return m.Handler(ratelimit.CategorySignup)(next)
}

// Payment wraps next with the payment category limits.
func (m *RateLimitMiddleware) Payment(next http.Handler) http.Handler {
	return m.Handler(ratelimit.CategoryPayment)(next)
}

// Auth wraps next with the auth category limits.
func (m *RateLimitMiddleware) Auth(next http.Handler) http.Handler {
	return m.Handler(ratelimit.CategoryAuth)(next)
}

// Webhook wraps next with the webhook category limits.
func (m *RateLimitMiddleware) Webhook(next http.Handler) http.Handler {
	return m.Handler(ratelimit.CategoryWebhook)(next)
}
