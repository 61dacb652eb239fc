package ratelimit

import (
	"sync"
	"time"
)

// BurstResult is the outcome of a burst tier check. Limit and Window name
// the tier that rejected the request; on an allowed request they describe
// the per-second tier, with Remaining the per-second headroom left after
// recording this request.
type BurstResult struct {
	Allowed   bool
	Limit     int
	Window    time.Duration
	Remaining int
}

type burstBucket struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// BurstGuard enforces the sliding-window per-second and per-minute caps.
// Each client keeps the timestamps of its requests over the trailing minute;
// the per-second tier is checked before the per-minute tier, and a request
// rejected by either tier is not recorded.
type BurstGuard struct {
	mu      sync.Mutex
	buckets map[string]*burstBucket
	cfg     *Config
}

// NewBurstGuard returns an empty guard using cfg's burst caps.
func NewBurstGuard(cfg *Config) *BurstGuard {
	return &BurstGuard{
		buckets: make(map[string]*burstBucket),
		cfg:     cfg,
	}
}

// Check evaluates and, when allowed, records a request from id at now.
// Thresholds are inclusive: the request that would make the count exceed
// the cap is the one rejected.
func (g *BurstGuard) Check(id string, now time.Time) BurstResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket, ok := g.buckets[id]
	if !ok {
		bucket = &burstBucket{}
		g.buckets[id] = bucket
	}

	minuteCutoff := now.Add(-time.Minute)
	secondCutoff := now.Add(-time.Second)

	kept := bucket.timestamps[:0]
	secondCount := 0
	for _, ts := range bucket.timestamps {
		if ts.After(minuteCutoff) {
			kept = append(kept, ts)
			if ts.After(secondCutoff) {
				secondCount++
			}
		}
	}
	bucket.timestamps = kept
	bucket.lastSeen = now

	if secondCount >= g.cfg.BurstPerSecond {
		return BurstResult{Limit: g.cfg.BurstPerSecond, Window: time.Second}
	}
	if len(bucket.timestamps) >= g.cfg.BurstPerMinute {
		return BurstResult{Limit: g.cfg.BurstPerMinute, Window: time.Minute}
	}

	bucket.timestamps = append(bucket.timestamps, now)
	return BurstResult{
		Allowed:   true,
		Limit:     g.cfg.BurstPerSecond,
		Window:    time.Second,
		Remaining: g.cfg.BurstPerSecond - secondCount - 1,
	}
}

// Sweep drops buckets that have been idle longer than the configured idle
// horizon and returns the number dropped.
func (g *BurstGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	idleCutoff := now.Add(-g.cfg.SweepBurstIdle)
	removed := 0
	for id, bucket := range g.buckets {
		if bucket.lastSeen.Before(idleCutoff) {
			delete(g.buckets, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked burst buckets.
func (g *BurstGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}
