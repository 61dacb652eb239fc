package users

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Service is the user store contract the rate limiter and the status API
// consume. Implementations must treat inactive users as not found and must
// only touch the quota fields on UpdateQuota (field-level update semantics).
type Service interface {
	// GetUser returns the active user with the given ID, or ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*User, error)

	// GetUserByEmail returns the active user with the given email
	// (case-insensitive), or ErrUserNotFound.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateQuota persists the monthly quota fields for a user. The
	// organization ID is the store's partition key and must match the record.
	UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error
}

// MemoryService is an in-memory Service for tests and local development.
type MemoryService struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryService creates an empty in-memory user store.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		users: make(map[string]*User),
	}
}

// Put inserts or replaces a user record.
func (s *MemoryService) Put(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
}

// GetUser returns the active user with the given ID.
func (s *MemoryService) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok || !user.Active() {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail returns the active user with the given email.
func (s *MemoryService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) && user.Active() {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

// UpdateQuota persists the quota fields for a user.
func (s *MemoryService) UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok || user.OrganizationID != orgID {
		return ErrUserNotFound
	}

	user.QuestionsAsked = questionsAsked
	user.QuestionsResetDate = resetDate
	return nil
}
