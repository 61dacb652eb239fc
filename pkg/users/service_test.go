package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeUser(id string) *User {
	return &User{
		ID:             id,
		Email:          id + "@example.com",
		Status:         StatusActive,
		OrganizationID: "org-1",
		CreatedAt:      time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryService_GetUser(t *testing.T) {
	svc := NewMemoryService()
	svc.Put(activeUser("u1"))

	user, err := svc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "u1@example.com", user.Email)
}

func TestMemoryService_GetUser_NotFound(t *testing.T) {
	svc := NewMemoryService()

	_, err := svc.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryService_GetUser_InactiveIsNotFound(t *testing.T) {
	svc := NewMemoryService()
	suspended := activeUser("u1")
	suspended.Status = StatusSuspended
	svc.Put(suspended)

	_, err := svc.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryService_GetUserByEmail_CaseInsensitive(t *testing.T) {
	svc := NewMemoryService()
	svc.Put(activeUser("u1"))

	user, err := svc.GetUserByEmail(context.Background(), "U1@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestMemoryService_UpdateQuota(t *testing.T) {
	svc := NewMemoryService()
	svc.Put(activeUser("u1"))

	resetDate := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	err := svc.UpdateQuota(context.Background(), "u1", "org-1", 7, resetDate)
	require.NoError(t, err)

	user, err := svc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, user.QuestionsAsked)
	assert.True(t, user.QuestionsResetDate.Equal(resetDate))
}

func TestMemoryService_UpdateQuota_WrongOrg(t *testing.T) {
	svc := NewMemoryService()
	svc.Put(activeUser("u1"))

	err := svc.UpdateQuota(context.Background(), "u1", "org-other", 7, time.Now())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryService_ReturnsCopies(t *testing.T) {
	svc := NewMemoryService()
	svc.Put(activeUser("u1"))

	user, err := svc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	user.QuestionsAsked = 99

	fresh, err := svc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, fresh.QuestionsAsked, "mutating a returned record must not touch the store")
}

func TestUser_Active(t *testing.T) {
	assert.True(t, activeUser("u1").Active())

	deleted := activeUser("u2")
	deleted.Status = StatusDeleted
	assert.False(t, deleted.Active())
}
