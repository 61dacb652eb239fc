package ratelimit

import (
	"context"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/users"
)

// UserQuotaResult is the outcome of a monthly user quota check.
// QuestionsAsked reflects the count after a successful increment.
type UserQuotaResult struct {
	Allowed        bool
	QuestionsAsked int
	Limit          int
	Remaining      int
	ResetDate      time.Time
}

// UserQuotaGuard enforces the per-user calendar-month question quota backed
// by the user store. Rollover is detected by month-and-year equality between
// the stored reset date and now, never by ordering, so clock skew around the
// boundary cannot double-reset a counter. Legacy records that predate quota
// tracking carry no reset date; they are initialized lazily on first check.
type UserQuotaGuard struct {
	store users.Service
	cfg   *Config
}

// NewUserQuotaGuard returns a guard reading and persisting quota state
// through store.
func NewUserQuotaGuard(store users.Service, cfg *Config) *UserQuotaGuard {
	return &UserQuotaGuard{store: store, cfg: cfg}
}

// sameCalendarMonth reports whether a and b fall in the same month of the
// same year, compared in UTC.
func sameCalendarMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// nextMonthStart returns midnight UTC on the first day of the month after
// now. time.Date normalizes month 13 into January of the next year.
func nextMonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// currentMonthStart returns midnight UTC on the first day of now's month.
func currentMonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Check evaluates and, when allowed, increments the user's monthly counter,
// persisting the new count through the store. Errors from the store,
// including users.ErrUserNotFound, are returned to the caller untouched; the
// coordinator decides the failure policy.
func (g *UserQuotaGuard) Check(ctx context.Context, userID string, now time.Time) (UserQuotaResult, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return UserQuotaResult{}, err
	}

	questionsAsked, resetDate := effectiveQuota(user, now)

	limit := g.cfg.MonthlyQuestionLimit
	if questionsAsked >= limit {
		return UserQuotaResult{
			QuestionsAsked: questionsAsked,
			Limit:          limit,
			ResetDate:      nextMonthStart(now),
		}, nil
	}

	newCount := questionsAsked + 1
	if err := g.store.UpdateQuota(ctx, user.ID, user.OrganizationID, newCount, resetDate); err != nil {
		return UserQuotaResult{}, err
	}
	return UserQuotaResult{
		Allowed:        true,
		QuestionsAsked: newCount,
		Limit:          limit,
		Remaining:      limit - newCount,
		ResetDate:      nextMonthStart(now),
	}, nil
}

// Status reports the user's quota without consuming a question. Rollover is
// applied logically for the response but nothing is persisted.
func (g *UserQuotaGuard) Status(ctx context.Context, userID string, now time.Time) (users.QuotaStatus, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return users.QuotaStatus{}, err
	}

	questionsAsked, _ := effectiveQuota(user, now)

	limit := g.cfg.MonthlyQuestionLimit
	remaining := limit - questionsAsked
	if remaining < 0 {
		remaining = 0
	}
	return users.QuotaStatus{
		QuestionsAsked: questionsAsked,
		Limit:          limit,
		Remaining:      remaining,
		ResetDate:      nextMonthStart(now),
	}, nil
}

// StatusByEmail is Status keyed by email, for the public status endpoint.
func (g *UserQuotaGuard) StatusByEmail(ctx context.Context, email string, now time.Time) (users.QuotaStatus, error) {
	user, err := g.store.GetUserByEmail(ctx, email)
	if err != nil {
		return users.QuotaStatus{}, err
	}
	return g.Status(ctx, user.ID, now)
}

// effectiveQuota resolves the user's counter and reset anchor for now,
// applying lazy initialization and calendar-month rollover. The returned
// anchor is the value to persist alongside the next increment: it always
// lands in now's month, so the equality check stays stable for the rest of
// the month and the counter resets exactly once per month crossing no matter
// how many months the user sat idle.
func effectiveQuota(user *users.User, now time.Time) (int, time.Time) {
	resetDate := user.QuestionsResetDate
	if resetDate.IsZero() {
		// Legacy record from before quota tracking; anchor to the
		// account's creation month.
		resetDate = user.CreatedAt
	}
	if resetDate.IsZero() || !sameCalendarMonth(resetDate, now) {
		return 0, currentMonthStart(now)
	}
	return user.QuestionsAsked, resetDate
}
