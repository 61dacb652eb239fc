package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/ratelimit"
	"github.com/fdicloud/taxbot-backend/pkg/users"
)

func statusHandler(store users.Service) *RateLimitStatusHandler {
	return NewRateLimitStatusHandler(ratelimit.NewLimiter(nil, store, nil, nil), nil)
}

func postStatus(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("POST", "/api/rate-limit-status", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestRateLimitStatus_ReturnsQuota(t *testing.T) {
	store := users.NewMemoryService()
	store.Put(&users.User{
		ID:                 "user-1",
		Email:              "filer@example.com",
		Status:             users.StatusActive,
		OrganizationID:     "org-1",
		QuestionsAsked:     12,
		QuestionsResetDate: time.Now().UTC(),
	})

	w := postStatus(t, statusHandler(store), `{"email":"filer@example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		QuestionsAsked int       `json:"questionsAsked"`
		Limit          int       `json:"limit"`
		Remaining      int       `json:"remaining"`
		ResetDate      time.Time `json:"resetDate"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if resp.QuestionsAsked != 12 || resp.Limit != 50 || resp.Remaining != 38 {
		t.Errorf("got %+v, want 12/50/38", resp)
	}
	if resp.ResetDate.Day() != 1 {
		t.Errorf("ResetDate = %v, want first of month", resp.ResetDate)
	}

	// The lookup must not consume a question.
	stored, _ := store.GetUser(context.Background(), "user-1")
	if stored.QuestionsAsked != 12 {
		t.Errorf("lookup consumed quota: %d", stored.QuestionsAsked)
	}
}

func TestRateLimitStatus_MethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	statusHandler(users.NewMemoryService()).ServeHTTP(w, httptest.NewRequest("GET", "/api/rate-limit-status", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestRateLimitStatus_InvalidEmail(t *testing.T) {
	handler := statusHandler(users.NewMemoryService())
	for _, body := range []string{`{}`, `{"email":""}`, `{"email":"not-an-email"}`, `not json`} {
		if w := postStatus(t, handler, body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestRateLimitStatus_UnknownUser(t *testing.T) {
	w := postStatus(t, statusHandler(users.NewMemoryService()), `{"email":"ghost@example.com"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// erroringStore fails every read to exercise the 500 path.
type erroringStore struct{}

func (erroringStore) GetUser(ctx context.Context, userID string) (*users.User, error) {
	return nil, errors.New("connection refused")
}

func (erroringStore) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, errors.New("connection refused")
}

func (erroringStore) UpdateQuota(ctx context.Context, userID, orgID string, questionsAsked int, resetDate time.Time) error {
	return errors.New("connection refused")
}

func TestRateLimitStatus_StoreFailure(t *testing.T) {
	w := postStatus(t, statusHandler(erroringStore{}), `{"email":"filer@example.com"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
