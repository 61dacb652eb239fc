// Package ratelimit implements the multi-tier request throttle protecting the
// taxbot backend.
//
// Every rate-limited request passes through four guard tiers in order:
//
//  1. PenaltyTracker - escalating lockouts for repeat offenders
//  2. BurstGuard - sliding-window per-second and per-minute caps
//  3. IPQuotaGuard - fixed-window per-IP caps by endpoint category
//  4. UserQuotaGuard - calendar-month question quota for authenticated users
//
// The Limiter coordinates the tiers: evaluation short-circuits on the first
// rejection, every rejection except an already-active block escalates the
// shared penalty counter, and the resulting Decision carries the reason code,
// retry-after, and standard X-RateLimit-* response metadata.
//
// Guard state is process-local and ephemeral. Across horizontally scaled
// instances the penalty, burst, and IP tiers are NOT globally consistent; a
// client spread across instances by a load balancer sees each instance's
// limits independently. That is an accepted trade-off for the short-horizon
// tiers. Deployments that need shared enforcement for the IP and penalty
// tiers can use RedisLimiter instead, which keeps those tiers in Redis and
// fails open when Redis is unreachable.
//
// State maps are owned by the Limiter instance (constructor-injected, no
// package-level singletons) and cleaned by an explicit Sweep method meant to
// be called from the host's scheduler.
package ratelimit
