package users

import (
	"context"
	"errors"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/observability"
)

// InstrumentedService wraps a Service and records an operation counter and
// duration histogram per call. A missing user is counted separately from a
// store failure so dashboards don't read lookup misses as outages.
type InstrumentedService struct {
	inner   Service
	metrics *observability.Metrics
}

// NewInstrumentedService wraps inner with metrics. metrics must not be nil.
func NewInstrumentedService(inner Service, metrics *observability.Metrics) *InstrumentedService {
	return &InstrumentedService{inner: inner, metrics: metrics}
}

func (s *InstrumentedService) observe(operation string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrUserNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	s.metrics.UserStoreOperationsTotal.WithLabelValues(operation, status).Inc()
	s.metrics.UserStoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedService) GetUser(ctx context.Context, userID string) (*User, error) {
	start := time.Now()
	user, err := s.inner.GetUser(ctx, userID)
	s.observe("get_user", start, err)
	return user, err
}

func (s *InstrumentedService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	start := time.Now()
	user, err := s.inner.GetUserByEmail(ctx, email)
	s.observe("get_user_by_email", start, err)
	return user, err
}

func (s *InstrumentedService) UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error {
	start := time.Now()
	err := s.inner.UpdateQuota(ctx, userID, orgID, questionsAsked, resetDate)
	s.observe("update_quota", start, err)
	return err
}
