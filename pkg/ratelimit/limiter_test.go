package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/observability"
	"github.com/fdicloud/taxbot-backend/pkg/users"
)

var limiterEpoch = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// fakeClock is a hand-advanced time source for deterministic evaluation.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(store users.Service) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: limiterEpoch}
	limiter := NewLimiter(nil, store, nil, nil)
	limiter.SetClock(clock.Now)
	return limiter, clock
}

func requestFrom(ip string) *http.Request {
	r := httptest.NewRequest("POST", "/api/questions", nil)
	r.Header.Set("X-Forwarded-For", ip)
	return r
}

func TestLimiter_AllowedRequestCarriesMetadata(t *testing.T) {
	limiter, _ := newTestLimiter(nil)

	decision, err := limiter.Evaluate(context.Background(), requestFrom("1.2.3.4"), CheckOptions{Category: CategoryGeneral})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected allowed")
	}
	if decision.ClientIP != "1.2.3.4" {
		t.Errorf("ClientIP = %q", decision.ClientIP)
	}
	if decision.Limit != 100 || decision.Remaining != 99 {
		t.Errorf("limit/remaining = %d/%d, want 100/99", decision.Limit, decision.Remaining)
	}

	headers := decision.Headers()
	if headers["X-RateLimit-Limit"] != "100" || headers["X-RateLimit-Remaining"] != "99" {
		t.Errorf("headers = %v", headers)
	}
	if headers["X-RateLimit-Window"] != "60" {
		t.Errorf("window header = %q, want 60", headers["X-RateLimit-Window"])
	}
	if _, ok := headers["Retry-After"]; ok {
		t.Error("allowed decision must not carry Retry-After")
	}
}

func TestLimiter_ScenarioBurstTrip(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	r := requestFrom("1.2.3.4")

	// 11 requests within 500ms: 1-10 allowed with decreasing remaining on
	// the burst tier, 11 rejected with a 60s first-violation penalty.
	for i := 0; i < 10; i++ {
		decision, err := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral})
		if err != nil {
			t.Fatalf("request %d: error %v", i+1, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
		clock.Advance(45 * time.Millisecond)
	}

	decision, err := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral})
	if err != nil {
		t.Fatalf("request 11: error %v", err)
	}
	if decision.Allowed {
		t.Fatal("request 11 must be rejected")
	}
	if decision.Reason != ReasonBurstLimitExceeded {
		t.Errorf("reason = %q, want BURST_LIMIT_EXCEEDED", decision.Reason)
	}
	if decision.RetryAfter != 60 {
		t.Errorf("retryAfter = %d, want 60", decision.RetryAfter)
	}
	if decision.ViolationCount != 1 {
		t.Errorf("violationCount = %d, want 1", decision.ViolationCount)
	}
	if decision.Headers()["Retry-After"] != "60" {
		t.Errorf("Retry-After header = %q, want 60", decision.Headers()["Retry-After"])
	}
}

func TestLimiter_ScenarioEscalationThenCoolDown(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	r := requestFrom("1.2.3.4")

	// Three violations in a row, each landing as the previous block
	// expires, walking the ladder to 900s.
	var penalty PenaltyStatus
	for i, want := range []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute} {
		penalty = limiter.penalties.Apply("1.2.3.4", clock.Now())
		if got := penalty.UnblockTime.Sub(penalty.BlockedAt); got != want {
			t.Fatalf("violation %d: duration = %v, want %v", i+1, got, want)
		}
		clock.now = penalty.UnblockTime
	}

	// A 4th check while the 900s penalty is still running reports
	// IP_BLOCKED with the remaining time, not a fresh escalation.
	clock.now = penalty.BlockedAt.Add(400 * time.Second)
	d, err := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral})
	if err != nil {
		t.Fatalf("blocked check: error %v", err)
	}
	if d.Reason != ReasonIPBlocked {
		t.Fatalf("reason = %q, want IP_BLOCKED", d.Reason)
	}
	if d.RetryAfter != 500 {
		t.Errorf("retryAfter = %d, want remaining 500s of the 900s window", d.RetryAfter)
	}
	if d.ViolationCount != 3 {
		t.Errorf("violationCount = %d, want 3 (no new escalation)", d.ViolationCount)
	}
}

func TestLimiter_IPQuotaRejectionAppliesPenalty(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	r := requestFrom("1.2.3.4")

	// Exhaust the signup window (5/h) slowly enough to dodge the burst
	// tier.
	for i := 0; i < 5; i++ {
		decision, _ := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategorySignup})
		if !decision.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
		clock.Advance(10 * time.Second)
	}

	decision, _ := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategorySignup})
	if decision.Allowed {
		t.Fatal("6th signup must be rejected")
	}
	if decision.Reason != ReasonIPRateLimitExceeded {
		t.Errorf("reason = %q, want IP_RATE_LIMIT_EXCEEDED", decision.Reason)
	}
	if decision.ViolationCount != 1 {
		t.Errorf("violationCount = %d, want penalty applied", decision.ViolationCount)
	}

	// The shared penalty now blocks every category for this IP.
	decision, _ = limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral})
	if decision.Reason != ReasonIPBlocked {
		t.Errorf("follow-up reason = %q, want IP_BLOCKED", decision.Reason)
	}
}

func TestLimiter_UserQuotaRejectionDoesNotPenalize(t *testing.T) {
	store := users.NewMemoryService()
	store.Put(&users.User{
		ID:                 "user-1",
		Email:              "filer@example.com",
		Status:             users.StatusActive,
		OrganizationID:     "org-1",
		QuestionsAsked:     50,
		QuestionsResetDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	limiter, _ := newTestLimiter(store)
	r := requestFrom("1.2.3.4")

	decision, err := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral, UserID: "user-1"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("exhausted user must be rejected")
	}
	if decision.Reason != ReasonUserRateLimitExceeded {
		t.Errorf("reason = %q, want USER_RATE_LIMIT_EXCEEDED", decision.Reason)
	}
	if decision.UserQuota == nil || decision.UserQuota.QuestionsAsked != 50 {
		t.Errorf("UserQuota = %+v, want 50 asked", decision.UserQuota)
	}

	// A quota-exhausted user is not abuse: the IP stays clean.
	next, _ := limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral})
	if !next.Allowed {
		t.Errorf("follow-up anonymous request rejected with %q, IP must not be penalized", next.Reason)
	}
}

func TestLimiter_UserNotFoundPropagates(t *testing.T) {
	limiter, _ := newTestLimiter(users.NewMemoryService())

	decision, err := limiter.Evaluate(context.Background(), requestFrom("1.2.3.4"), CheckOptions{Category: CategoryGeneral, UserID: "ghost"})
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	if !decision.Allowed {
		t.Error("IP tiers passed; decision should reflect that even when the user is unknown")
	}
}

// failingStore simulates an unavailable backing store.
type failingStore struct{}

func (failingStore) GetUser(ctx context.Context, userID string) (*users.User, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error {
	return errors.New("connection refused")
}

func TestLimiter_FailOpenOnStoreFailure(t *testing.T) {
	limiter, _ := newTestLimiter(failingStore{})

	decision, err := limiter.Evaluate(context.Background(), requestFrom("1.2.3.4"), CheckOptions{Category: CategoryGeneral, UserID: "user-1"})
	if err != nil {
		t.Fatalf("store failure must not surface, got %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("store failure must fail open, got %q", decision.Reason)
	}
	if decision.UserQuota != nil {
		t.Error("failed quota stage must not report quota data")
	}
}

// panickingStore blows up instead of returning an error.
type panickingStore struct{}

func (panickingStore) GetUser(ctx context.Context, userID string) (*users.User, error) {
	panic("store invariant violated")
}

func (panickingStore) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	panic("store invariant violated")
}

func (panickingStore) UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error {
	panic("store invariant violated")
}

func TestLimiter_PanicDuringEvaluationAllowsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.ErrorLevel, &buf)
	limiter := NewLimiter(nil, panickingStore{}, logger, nil)
	limiter.SetClock((&fakeClock{now: limiterEpoch}).Now)

	decision, err := limiter.Evaluate(context.Background(), requestFrom("1.2.3.4"), CheckOptions{Category: CategoryGeneral, UserID: "user-1"})
	if err != nil {
		t.Fatalf("panic must not surface as an error, got %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("panic must fail open, got %q", decision.Reason)
	}
	if decision.ClientIP != "1.2.3.4" {
		t.Errorf("ClientIP = %q, want 1.2.3.4", decision.ClientIP)
	}
	if !bytes.Contains(buf.Bytes(), []byte("PANIC recovered")) {
		t.Error("recovered panic not logged")
	}
}

func TestLimiter_EmptyCategoryDefaultsToGeneral(t *testing.T) {
	limiter, _ := newTestLimiter(nil)
	decision, _ := limiter.Evaluate(context.Background(), requestFrom("1.2.3.4"), CheckOptions{})
	if decision.Limit != 100 || decision.Window != time.Minute {
		t.Errorf("got %d/%v, want general tier 100/60s", decision.Limit, decision.Window)
	}
}

func TestLimiter_SweepPrunesAllGuards(t *testing.T) {
	limiter, clock := newTestLimiter(nil)

	// A penalty, a burst bucket, and an IP bucket for three clients.
	for i := 0; i < 11; i++ {
		limiter.Evaluate(context.Background(), requestFrom("1.2.3.4"), CheckOptions{Category: CategoryGeneral})
	}
	limiter.Evaluate(context.Background(), requestFrom("5.6.7.8"), CheckOptions{Category: CategoryGeneral})

	clock.Advance(10 * time.Minute)
	stats := limiter.Sweep()
	if stats.Penalties != 1 {
		t.Errorf("Penalties swept = %d, want 1", stats.Penalties)
	}
	if stats.BurstBuckets != 2 {
		t.Errorf("BurstBuckets swept = %d, want 2", stats.BurstBuckets)
	}
	if stats.IPBuckets != 2 {
		t.Errorf("IPBuckets swept = %d, want 2", stats.IPBuckets)
	}
}

func TestLimiter_SharedBucketForUnknownClients(t *testing.T) {
	limiter, _ := newTestLimiter(nil)

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""
	var decision Decision
	for i := 0; i < 11; i++ {
		decision, _ = limiter.Evaluate(context.Background(), r, CheckOptions{Category: CategoryGeneral})
	}
	if decision.Allowed {
		t.Error("clients with no discernible origin share one bucket and must trip limits together")
	}
	if decision.ClientIP != "unknown" {
		t.Errorf("ClientIP = %q, want unknown", decision.ClientIP)
	}
}

func TestLimiter_QuotaStatusByEmail(t *testing.T) {
	store := users.NewMemoryService()
	store.Put(&users.User{
		ID:                 "user-1",
		Email:              "filer@example.com",
		Status:             users.StatusActive,
		OrganizationID:     "org-1",
		QuestionsAsked:     20,
		QuestionsResetDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	limiter, _ := newTestLimiter(store)

	status, err := limiter.QuotaStatusByEmail(context.Background(), "filer@example.com")
	if err != nil {
		t.Fatalf("QuotaStatusByEmail() error: %v", err)
	}
	if status.QuestionsAsked != 20 || status.Remaining != 30 {
		t.Errorf("got %+v, want 20 asked / 30 remaining", status)
	}
}

func TestDecision_ApplyWritesHeaders(t *testing.T) {
	d := Decision{
		Allowed:    false,
		Reason:     ReasonBurstLimitExceeded,
		RetryAfter: 60,
		Limit:      10,
		Remaining:  0,
		Window:     time.Second,
		ResetTime:  limiterEpoch.Add(time.Minute),
	}
	rec := httptest.NewRecorder()
	d.Apply(rec.Header())

	if rec.Header().Get("X-RateLimit-Limit") != "10" {
		t.Errorf("limit header = %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("retry-after header = %q", rec.Header().Get("Retry-After"))
	}
}
