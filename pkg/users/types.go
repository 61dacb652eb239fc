package users

import (
	"errors"
	"time"
)

// User statuses as stored on the user record
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

// ErrUserNotFound is returned when no active user matches the lookup.
// Inactive users are reported as not found, matching the store query the
// admin surface uses ("status = 'active'").
var ErrUserNotFound = errors.New("user not found")

// User is the subset of the user record this backend reads and writes.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Status         string    `json:"status"`
	OrganizationID string    `json:"organizationId"`
	CreatedAt      time.Time `json:"createdAt"`

	// Monthly question quota fields. A zero QuestionsResetDate means the
	// record predates quota tracking and is initialized on first check.
	QuestionsAsked     int       `json:"questionsAsked"`
	QuestionsResetDate time.Time `json:"questionsResetDate"`
}

// Active reports whether the user may ask questions at all.
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// QuotaStatus is the read-only monthly quota view returned to clients.
type QuotaStatus struct {
	QuestionsAsked int       `json:"questionsAsked"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	ResetDate      time.Time `json:"resetDate"`
}
