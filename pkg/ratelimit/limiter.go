package ratelimit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/observability"
	"github.com/fdicloud/taxbot-backend/pkg/users"
)

// CheckOptions selects the limit category for a request and, when the
// request carries an authenticated principal, the user whose monthly quota
// should be consumed.
type CheckOptions struct {
	Category Category
	UserID   string
}

// Decision is the unified outcome of one evaluation pass. On rejection,
// Reason names the tier that rejected and RetryAfter the seconds until the
// client may retry. Limit/Remaining/ResetTime/Window describe whichever tier
// produced the decision and feed the X-RateLimit-* headers.
type Decision struct {
	Allowed        bool
	Reason         ReasonCode
	ClientIP       string
	RetryAfter     int
	Limit          int
	Remaining      int
	Window         time.Duration
	ResetTime      time.Time
	ViolationCount int

	// UserQuota is set when the monthly quota tier was consulted.
	UserQuota *users.QuotaStatus
}

// Headers returns the rate limit response headers for this decision. The
// reset value is a unix timestamp in seconds, the window in seconds.
func (d Decision) Headers() map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(d.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(d.Remaining),
	}
	if !d.ResetTime.IsZero() {
		h["X-RateLimit-Reset"] = strconv.FormatInt(d.ResetTime.Unix(), 10)
	}
	if d.Window > 0 {
		h["X-RateLimit-Window"] = strconv.Itoa(int(d.Window / time.Second))
	}
	if !d.Allowed && d.RetryAfter > 0 {
		h["Retry-After"] = strconv.Itoa(d.RetryAfter)
	}
	return h
}

// Apply writes the decision's headers onto an HTTP response.
func (d Decision) Apply(h http.Header) {
	for k, v := range d.Headers() {
		h.Set(k, v)
	}
}

// Limiter coordinates the four guard tiers. All state lives on the instance;
// construct one per process (or per test) and share it across handlers.
type Limiter struct {
	cfg       *Config
	penalties *PenaltyTracker
	burst     *BurstGuard
	ipQuota   *IPQuotaGuard
	userQuota *UserQuotaGuard

	logger  *observability.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// NewLimiter builds a Limiter with fresh guard state. cfg may be nil for
// DefaultConfig; store may be nil when no endpoint uses the user tier;
// metrics may be nil to disable instrumentation.
func NewLimiter(cfg *Config, store users.Service, logger *observability.Logger, metrics *observability.Metrics) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	l := &Limiter{
		cfg:       cfg,
		penalties: NewPenaltyTracker(cfg),
		burst:     NewBurstGuard(cfg),
		ipQuota:   NewIPQuotaGuard(cfg),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	if store != nil {
		l.userQuota = NewUserQuotaGuard(store, cfg)
	}
	return l
}

// SetClock overrides the limiter's time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() *Config {
	return l.cfg
}

// retryAfterSeconds converts a deadline into whole seconds from now,
// rounding up so a client that honors the header never retries early.
func retryAfterSeconds(now, until time.Time) int {
	if !until.After(now) {
		return 0
	}
	return int(math.Ceil(until.Sub(now).Seconds()))
}

// Evaluate runs the guard tiers in order (penalty, burst, IP quota, user
// quota) and short-circuits on the first rejection. Burst and IP quota
// rejections escalate the shared penalty counter; monthly quota exhaustion
// does not, since an authenticated user running out of questions is not
// abuse. The only non-nil error is users.ErrUserNotFound; everything else is
// absorbed into the Decision. A panic anywhere in evaluation is recovered
// and the request allowed: availability is favored over strict enforcement.
func (l *Limiter) Evaluate(ctx context.Context, r *http.Request, opts CheckOptions) (decision Decision, err error) {
	ip := ClientIP(r, l.cfg.PlatformIPHeader)
	now := l.now()

	defer observability.RecoverPanicWithCallback(
		l.logger.WithField("client_ip", ip).WithField("category", string(opts.Category)),
		"rate limit evaluation",
		func() {
			decision = Decision{Allowed: true, ClientIP: ip}
			err = nil
		},
	)

	if opts.Category == "" {
		opts.Category = CategoryGeneral
	}
	catLimit := l.cfg.CategoryLimitFor(opts.Category)

	if status, blocked := l.penalties.IsBlocked(ip, now); blocked {
		decision = Decision{
			Reason:         ReasonIPBlocked,
			ClientIP:       ip,
			RetryAfter:     retryAfterSeconds(now, status.UnblockTime),
			Limit:          catLimit.Requests,
			Remaining:      0,
			Window:         catLimit.Window,
			ResetTime:      status.UnblockTime,
			ViolationCount: status.ViolationCount,
		}
		l.observe(opts.Category, decision)
		return decision, nil
	}

	if burst := l.burst.Check(ip, now); !burst.Allowed {
		penalty := l.applyPenalty(ip, now, ReasonBurstLimitExceeded, opts.Category)
		decision = Decision{
			Reason:         ReasonBurstLimitExceeded,
			ClientIP:       ip,
			RetryAfter:     retryAfterSeconds(now, penalty.UnblockTime),
			Limit:          burst.Limit,
			Remaining:      0,
			Window:         burst.Window,
			ResetTime:      penalty.UnblockTime,
			ViolationCount: penalty.ViolationCount,
		}
		l.observe(opts.Category, decision)
		return decision, nil
	}

	ipq := l.ipQuota.Check(ip, opts.Category, now)
	if !ipq.Allowed {
		penalty := l.applyPenalty(ip, now, ReasonIPRateLimitExceeded, opts.Category)
		retryAt := ipq.ResetTime
		if penalty.UnblockTime.After(retryAt) {
			retryAt = penalty.UnblockTime
		}
		decision = Decision{
			Reason:         ReasonIPRateLimitExceeded,
			ClientIP:       ip,
			RetryAfter:     retryAfterSeconds(now, retryAt),
			Limit:          ipq.Limit,
			Remaining:      0,
			Window:         ipq.Window,
			ResetTime:      ipq.ResetTime,
			ViolationCount: penalty.ViolationCount,
		}
		l.observe(opts.Category, decision)
		return decision, nil
	}

	decision = Decision{
		Allowed:   true,
		ClientIP:  ip,
		Limit:     ipq.Limit,
		Remaining: ipq.Remaining,
		Window:    ipq.Window,
		ResetTime: ipq.ResetTime,
	}

	if opts.UserID != "" && l.userQuota != nil {
		userResult, userErr := l.userQuota.Check(ctx, opts.UserID, now)
		switch {
		case errors.Is(userErr, users.ErrUserNotFound):
			l.observe(opts.Category, decision)
			return decision, userErr
		case userErr != nil:
			// Store trouble must not take the API down; allow the
			// request and keep the IP-tier metadata.
			l.logger.WithError(userErr).
				WithField("user_id", opts.UserID).
				WithField("client_ip", ip).
				Warn("user quota check failed, failing open")
			if l.metrics != nil {
				l.metrics.UserStoreFailOpenTotal.Inc()
			}
		case !userResult.Allowed:
			quota := quotaStatus(userResult)
			decision = Decision{
				Reason:     ReasonUserRateLimitExceeded,
				ClientIP:   ip,
				RetryAfter: retryAfterSeconds(now, userResult.ResetDate),
				Limit:      userResult.Limit,
				Remaining:  0,
				ResetTime:  userResult.ResetDate,
				UserQuota:  &quota,
			}
			l.observe(opts.Category, decision)
			return decision, nil
		default:
			quota := quotaStatus(userResult)
			decision.UserQuota = &quota
		}
	}

	l.observe(opts.Category, decision)
	return decision, nil
}

func quotaStatus(r UserQuotaResult) users.QuotaStatus {
	return users.QuotaStatus{
		QuestionsAsked: r.QuestionsAsked,
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetDate:      r.ResetDate,
	}
}

func (l *Limiter) applyPenalty(ip string, now time.Time, reason ReasonCode, cat Category) PenaltyStatus {
	penalty := l.penalties.Apply(ip, now)
	l.logger.WithField("client_ip", ip).
		WithField("reason", string(reason)).
		WithField("category", string(cat)).
		WithField("violation_count", penalty.ViolationCount).
		WithField("unblock_time", penalty.UnblockTime).
		Warn("rate limit violation, penalty applied")
	if l.metrics != nil {
		l.metrics.ObservePenalty(penalty.ViolationCount)
	}
	return penalty
}

func (l *Limiter) observe(cat Category, d Decision) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveDecision(string(cat), d.Allowed, string(d.Reason))
}

// QuotaStatus reports a user's monthly quota without consuming a question.
func (l *Limiter) QuotaStatus(ctx context.Context, userID string) (users.QuotaStatus, error) {
	if l.userQuota == nil {
		return users.QuotaStatus{}, errors.New("user quota tier not configured")
	}
	return l.userQuota.Status(ctx, userID, l.now())
}

// QuotaStatusByEmail is QuotaStatus keyed by email.
func (l *Limiter) QuotaStatusByEmail(ctx context.Context, email string) (users.QuotaStatus, error) {
	if l.userQuota == nil {
		return users.QuotaStatus{}, errors.New("user quota tier not configured")
	}
	return l.userQuota.StatusByEmail(ctx, email, l.now())
}
