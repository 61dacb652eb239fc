package ratelimit

import "time"

// SweepStats counts the stale entries removed by one sweep pass.
type SweepStats struct {
	Penalties    int
	BurstBuckets int
	IPBuckets    int
}

// Sweep removes expired penalties, idle burst buckets, and lapsed IP quota
// buckets. It never runs on its own timer; the host schedules it (the
// gateway uses a cron entry every five minutes).
func (l *Limiter) Sweep() SweepStats {
	start := time.Now()
	now := l.now()

	stats := SweepStats{
		Penalties:    l.penalties.Sweep(now),
		BurstBuckets: l.burst.Sweep(now),
		IPBuckets:    l.ipQuota.Sweep(now),
	}

	if l.metrics != nil {
		l.metrics.RateLimitSweepDuration.Observe(time.Since(start).Seconds())
		l.metrics.RateLimitSweptEntries.WithLabelValues("penalty").Add(float64(stats.Penalties))
		l.metrics.RateLimitSweptEntries.WithLabelValues("burst").Add(float64(stats.BurstBuckets))
		l.metrics.RateLimitSweptEntries.WithLabelValues("ip_quota").Add(float64(stats.IPBuckets))
		l.metrics.RateLimitActiveBlocks.Set(float64(l.penalties.Len()))
		l.metrics.RateLimitTrackedClients.WithLabelValues("penalty").Set(float64(l.penalties.Len()))
		l.metrics.RateLimitTrackedClients.WithLabelValues("burst").Set(float64(l.burst.Len()))
		l.metrics.RateLimitTrackedClients.WithLabelValues("ip_quota").Set(float64(l.ipQuota.Len()))
	}

	if stats.Penalties+stats.BurstBuckets+stats.IPBuckets > 0 {
		l.logger.WithField("penalties", stats.Penalties).
			WithField("burst_buckets", stats.BurstBuckets).
			WithField("ip_buckets", stats.IPBuckets).
			Debug("swept stale rate limit state")
	}
	return stats
}
