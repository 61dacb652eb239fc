// Package api holds the gateway's HTTP handlers.
package api

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/httputil"
	"github.com/fdicloud/taxbot-backend/pkg/observability"
	"github.com/fdicloud/taxbot-backend/pkg/ratelimit"
	"github.com/fdicloud/taxbot-backend/pkg/users"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RateLimitStatusHandler serves read-only monthly quota lookups so the
// frontend can show "X of 50 questions used" without consuming a question.
type RateLimitStatusHandler struct {
	limiter *ratelimit.Limiter
	logger  *observability.Logger
}

// NewRateLimitStatusHandler builds the handler around limiter.
func NewRateLimitStatusHandler(limiter *ratelimit.Limiter, logger *observability.Logger) *RateLimitStatusHandler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RateLimitStatusHandler{limiter: limiter, logger: logger}
}

type statusRequest struct {
	Email string `json:"email"`
}

type statusResponse struct {
	QuestionsAsked int       `json:"questionsAsked"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	ResetDate      time.Time `json:"resetDate"`
}

// ServeHTTP handles POST {email} and responds with the user's quota status.
func (h *RateLimitStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteMethodNotAllowed(w)
		return
	}

	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	if req.Email == "" || !emailPattern.MatchString(req.Email) {
		httputil.WriteValidationError(w, "valid email is required")
		return
	}

	status, err := h.limiter.QuotaStatusByEmail(r.Context(), req.Email)
	if errors.Is(err, users.ErrUserNotFound) {
		httputil.WriteNotFoundError(w, "user not found")
		return
	}
	if err != nil {
		observability.LoggerWithTraceContext(r.Context(), h.logger).
			WithError(err).
			WithField("email", req.Email).
			Error("quota status lookup failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to fetch rate limit status")
		return
	}

	httputil.WriteSuccess(w, statusResponse{
		QuestionsAsked: status.QuestionsAsked,
		Limit:          status.Limit,
		Remaining:      status.Remaining,
		ResetDate:      status.ResetDate,
	})
}
