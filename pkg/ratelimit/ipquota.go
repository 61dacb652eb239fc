package ratelimit

import (
	"sync"
	"time"
)

// IPQuotaResult is the outcome of a fixed-window IP quota check.
type IPQuotaResult struct {
	Allowed   bool
	Limit     int
	Window    time.Duration
	Remaining int
	ResetTime time.Time
}

type ipBucket struct {
	requests    int
	windowStart time.Time
	window      time.Duration
	lastRequest time.Time
}

// IPQuotaGuard enforces fixed-window request caps keyed by (client IP,
// category). A bucket's window restarts from the first request after the
// previous window elapses; there is no sliding behavior at this tier.
type IPQuotaGuard struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	cfg     *Config
}

// NewIPQuotaGuard returns an empty guard using cfg's category limit table.
func NewIPQuotaGuard(cfg *Config) *IPQuotaGuard {
	return &IPQuotaGuard{
		buckets: make(map[string]*ipBucket),
		cfg:     cfg,
	}
}

func ipBucketKey(ip string, cat Category) string {
	return ip + ":" + string(cat)
}

// Check evaluates and, when allowed, records a request from ip against the
// category's fixed window at now.
func (g *IPQuotaGuard) Check(ip string, cat Category, now time.Time) IPQuotaResult {
	limit := g.cfg.CategoryLimitFor(cat)

	g.mu.Lock()
	defer g.mu.Unlock()

	key := ipBucketKey(ip, cat)
	bucket, ok := g.buckets[key]
	if !ok || now.Sub(bucket.windowStart) > limit.Window {
		bucket = &ipBucket{windowStart: now, window: limit.Window}
		g.buckets[key] = bucket
	}
	bucket.lastRequest = now

	resetTime := bucket.windowStart.Add(limit.Window)
	if bucket.requests >= limit.Requests {
		return IPQuotaResult{
			Limit:     limit.Requests,
			Window:    limit.Window,
			ResetTime: resetTime,
		}
	}

	bucket.requests++
	return IPQuotaResult{
		Allowed:   true,
		Limit:     limit.Requests,
		Window:    limit.Window,
		Remaining: limit.Requests - bucket.requests,
		ResetTime: resetTime,
	}
}

// Sweep drops buckets whose window ended more than one full window ago and
// returns the number dropped. Keeping a bucket for a grace window past its
// reset keeps ResetTime stable for clients probing right at the boundary.
func (g *IPQuotaGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, bucket := range g.buckets {
		if now.Sub(bucket.windowStart) > 2*bucket.window {
			delete(g.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked IP quota buckets.
func (g *IPQuotaGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}
