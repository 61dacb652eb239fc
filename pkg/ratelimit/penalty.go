package ratelimit

import (
	"sync"
	"time"
)

// PenaltyStatus describes an active (or just-applied) penalty for a client.
type PenaltyStatus struct {
	ViolationCount int
	BlockedAt      time.Time
	UnblockTime    time.Time
}

// PenaltyTracker maintains escalating lockouts keyed by client identifier.
// Each violation bumps the client's count and re-blocks for the escalation
// table's duration at that count; the count plateaus at the table's last
// entry. Expired records are dropped lazily on read and in Sweep, which
// means a client whose penalty lapses starts over at violation count 1.
type PenaltyTracker struct {
	mu      sync.Mutex
	records map[string]*PenaltyStatus
	cfg     *Config
}

// NewPenaltyTracker returns an empty tracker using cfg's escalation table.
func NewPenaltyTracker(cfg *Config) *PenaltyTracker {
	return &PenaltyTracker{
		records: make(map[string]*PenaltyStatus),
		cfg:     cfg,
	}
}

// IsBlocked reports whether id is under an active penalty at now. A record
// whose unblock time has passed is deleted on the spot.
func (t *PenaltyTracker) IsBlocked(id string, now time.Time) (PenaltyStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return PenaltyStatus{}, false
	}
	if now.After(rec.UnblockTime) {
		delete(t.records, id)
		return PenaltyStatus{}, false
	}
	return *rec, true
}

// Apply records a violation for id at now, escalating the count if a record
// already exists, and returns the resulting penalty.
func (t *PenaltyTracker) Apply(id string, now time.Time) PenaltyStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 1
	if rec, ok := t.records[id]; ok {
		count = rec.ViolationCount + 1
	}
	rec := &PenaltyStatus{
		ViolationCount: count,
		BlockedAt:      now,
		UnblockTime:    now.Add(t.cfg.PenaltyDuration(count)),
	}
	t.records[id] = rec
	return *rec
}

// Sweep removes every record whose unblock time has passed and returns the
// number removed.
func (t *PenaltyTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, rec := range t.records {
		if now.After(rec.UnblockTime) {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked penalty records.
func (t *PenaltyTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
