package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fdicloud/taxbot-backend/pkg/observability"
)

// RedisLimiter keeps the penalty and IP quota tiers in Redis so that a
// horizontally scaled deployment enforces them consistently across
// instances. The burst tier stays process-local even here: its one-second
// horizon makes per-instance drift negligible and a Redis round trip per
// request for it is not worth the latency.
//
// Every Redis failure fails open. The limiter protects the backend from
// abuse; it must never become the reason the backend is down.
type RedisLimiter struct {
	client *redis.Client
	cfg    *Config
	logger *observability.Logger
	prefix string
	now    func() time.Time
}

// NewRedisLimiter wraps client with the cfg limit tables. cfg may be nil for
// DefaultConfig.
func NewRedisLimiter(client *redis.Client, cfg *Config, logger *observability.Logger) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		logger: logger,
		prefix: "taxbot:ratelimit",
		now:    time.Now,
	}
}

func (rl *RedisLimiter) penaltyKey(ip string) string {
	return fmt.Sprintf("%s:penalty:%s", rl.prefix, ip)
}

func (rl *RedisLimiter) quotaKey(ip string, cat Category) string {
	return fmt.Sprintf("%s:ip:%s:%s", rl.prefix, ip, cat)
}

// IsBlocked reports whether ip has an active shared penalty. The key's TTL
// is the remaining block time; the value is the violation count.
func (rl *RedisLimiter) IsBlocked(ctx context.Context, ip string) (PenaltyStatus, bool) {
	return rl.isBlockedAt(ctx, ip, rl.now())
}

func (rl *RedisLimiter) isBlockedAt(ctx context.Context, ip string, now time.Time) (PenaltyStatus, bool) {
	key := rl.penaltyKey(ip)
	ttl, err := rl.client.TTL(ctx, key).Result()
	if err != nil {
		rl.logger.WithError(err).WithField("client_ip", ip).Warn("redis penalty lookup failed, failing open")
		return PenaltyStatus{}, false
	}
	if ttl <= 0 {
		return PenaltyStatus{}, false
	}
	count, err := rl.client.Get(ctx, key).Int()
	if err != nil {
		count = 1
	}
	return PenaltyStatus{
		ViolationCount: count,
		BlockedAt:      now,
		UnblockTime:    now.Add(ttl),
	}, true
}

// Apply escalates ip's shared violation counter and re-arms the penalty key
// with the escalation duration for the new count. The counter and the block
// share one key, so the count resets naturally once a penalty lapses
// unobserved, matching the in-memory tracker's lazy expiry.
func (rl *RedisLimiter) Apply(ctx context.Context, ip string) PenaltyStatus {
	return rl.applyAt(ctx, ip, rl.now())
}

func (rl *RedisLimiter) applyAt(ctx context.Context, ip string, now time.Time) PenaltyStatus {
	key := rl.penaltyKey(ip)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		rl.logger.WithError(err).WithField("client_ip", ip).Warn("redis penalty increment failed, failing open")
		return PenaltyStatus{ViolationCount: 1, BlockedAt: now, UnblockTime: now}
	}
	duration := rl.cfg.PenaltyDuration(int(count))
	if err := rl.client.Expire(ctx, key, duration).Err(); err != nil {
		rl.logger.WithError(err).WithField("client_ip", ip).Warn("redis penalty expire failed")
	}
	return PenaltyStatus{
		ViolationCount: int(count),
		BlockedAt:      now,
		UnblockTime:    now.Add(duration),
	}
}

// CheckCategory runs the fixed-window IP quota for (ip, category) against
// Redis using a pipelined INCR+EXPIRE. The expiry refreshes on every
// request, so the window trails the most recent request rather than the
// first; slightly stricter than the in-memory guard for a client that never
// stops sending.
func (rl *RedisLimiter) CheckCategory(ctx context.Context, ip string, cat Category) IPQuotaResult {
	return rl.checkCategoryAt(ctx, ip, cat, rl.now())
}

func (rl *RedisLimiter) checkCategoryAt(ctx context.Context, ip string, cat Category, now time.Time) IPQuotaResult {
	limit := rl.cfg.CategoryLimitFor(cat)
	key := rl.quotaKey(ip, cat)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, limit.Window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.WithError(err).
			WithField("client_ip", ip).
			WithField("category", string(cat)).
			Warn("redis quota check failed, failing open")
		return IPQuotaResult{
			Allowed:   true,
			Limit:     limit.Requests,
			Window:    limit.Window,
			Remaining: limit.Requests - 1,
			ResetTime: now.Add(limit.Window),
		}
	}

	count := int(incr.Val())
	resetTime := now.Add(limit.Window)
	if remaining, err := ttl.Result(); err == nil && remaining > 0 {
		resetTime = now.Add(remaining)
	}

	if count > limit.Requests {
		return IPQuotaResult{
			Limit:     limit.Requests,
			Window:    limit.Window,
			ResetTime: resetTime,
		}
	}
	return IPQuotaResult{
		Allowed:   true,
		Limit:     limit.Requests,
		Window:    limit.Window,
		Remaining: limit.Requests - count,
		ResetTime: resetTime,
	}
}

// Evaluate runs the shared tiers for ip: active penalty first, then the
// category window, escalating the shared penalty on a window rejection. It
// returns a Decision shaped like the in-memory coordinator's so callers can
// compose the two.
func (rl *RedisLimiter) Evaluate(ctx context.Context, ip string, cat Category) Decision {
	if cat == "" {
		cat = CategoryGeneral
	}
	// One instant anchors the whole evaluation so the retry-after math and
	// the Redis TTLs agree on when the window ends.
	now := rl.now()

	if status, blocked := rl.isBlockedAt(ctx, ip, now); blocked {
		return Decision{
			Reason:         ReasonIPBlocked,
			ClientIP:       ip,
			RetryAfter:     retryAfterSeconds(now, status.UnblockTime),
			Limit:          rl.cfg.CategoryLimitFor(cat).Requests,
			Window:         rl.cfg.CategoryLimitFor(cat).Window,
			ResetTime:      status.UnblockTime,
			ViolationCount: status.ViolationCount,
		}
	}

	result := rl.checkCategoryAt(ctx, ip, cat, now)
	if !result.Allowed {
		penalty := rl.applyAt(ctx, ip, now)
		retryAt := result.ResetTime
		if penalty.UnblockTime.After(retryAt) {
			retryAt = penalty.UnblockTime
		}
		return Decision{
			Reason:         ReasonIPRateLimitExceeded,
			ClientIP:       ip,
			RetryAfter:     retryAfterSeconds(now, retryAt),
			Limit:          result.Limit,
			Window:         result.Window,
			ResetTime:      result.ResetTime,
			ViolationCount: penalty.ViolationCount,
		}
	}

	return Decision{
		Allowed:   true,
		ClientIP:  ip,
		Limit:     result.Limit,
		Remaining: result.Remaining,
		Window:    result.Window,
		ResetTime: result.ResetTime,
	}
}
