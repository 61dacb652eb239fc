package ratelimit

import "time"

// Category identifies the endpoint class a request belongs to. Each category
// carries its own fixed-window IP quota tuned to how sensitive (or how
// chatty) the endpoints behind it are.
type Category string

const (
	CategoryGeneral Category = "general"
	CategorySignup  Category = "signup"
	CategoryPayment Category = "payment"
	CategoryAuth    Category = "auth"
	CategoryWebhook Category = "webhook"
)

// CategoryLimit is a fixed-window request cap.
type CategoryLimit struct {
	Requests int
	Window   time.Duration
}

// Config holds every tunable of the rate limiting subsystem. Zero values are
// not usable; start from DefaultConfig and override fields as needed.
type Config struct {
	// Burst tier: sliding-window caps applied to every request regardless
	// of category.
	BurstPerSecond int
	BurstPerMinute int

	// IP quota tier: fixed-window caps keyed by (client IP, category).
	Categories map[Category]CategoryLimit

	// Penalty escalation table indexed by violation count (1-based). A
	// client whose violation count exceeds the table length stays at the
	// last entry.
	PenaltyDurations []time.Duration

	// MonthlyQuestionLimit caps questions per authenticated user per
	// calendar month.
	MonthlyQuestionLimit int

	// PlatformIPHeader is the hosting platform's client IP header,
	// consulted after X-Forwarded-For and X-Real-IP.
	PlatformIPHeader string

	// SweepBurstIdle controls how long a burst bucket may sit idle before
	// Sweep discards it.
	SweepBurstIdle time.Duration
}

// DefaultConfig returns the production limit tables.
func DefaultConfig() *Config {
	return &Config{
		BurstPerSecond: 10,
		BurstPerMinute: 100,
		Categories: map[Category]CategoryLimit{
			CategoryGeneral: {Requests: 100, Window: time.Minute},
			CategorySignup:  {Requests: 5, Window: time.Hour},
			CategoryPayment: {Requests: 10, Window: time.Hour},
			CategoryAuth:    {Requests: 50, Window: time.Hour},
			CategoryWebhook: {Requests: 1000, Window: time.Minute},
		},
		PenaltyDurations: []time.Duration{
			time.Minute,
			5 * time.Minute,
			15 * time.Minute,
			time.Hour,
		},
		MonthlyQuestionLimit: 50,
		PlatformIPHeader:     "X-Client-IP",
		SweepBurstIdle:       5 * time.Minute,
	}
}

// CategoryLimitFor resolves the limit for a category, falling back to the
// general tier for categories absent from the table.
func (c *Config) CategoryLimitFor(cat Category) CategoryLimit {
	if limit, ok := c.Categories[cat]; ok {
		return limit
	}
	return c.Categories[CategoryGeneral]
}

// PenaltyDuration returns the escalation duration for the given 1-based
// violation count, plateauing at the last table entry.
func (c *Config) PenaltyDuration(violationCount int) time.Duration {
	if len(c.PenaltyDurations) == 0 {
		return time.Minute
	}
	idx := violationCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.PenaltyDurations) {
		idx = len(c.PenaltyDurations) - 1
	}
	return c.PenaltyDurations[idx]
}
