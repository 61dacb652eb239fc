package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/fdicloud/taxbot-backend/pkg/contextkeys"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a UUID (or adopts the caller's, if present)
// and exposes it on the response and request context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
