package middleware

import (
	"net/http"

	"github.com/fdicloud/taxbot-backend/pkg/httputil"
	"github.com/fdicloud/taxbot-backend/pkg/observability"
)

// Recovery converts handler panics into a 500 response instead of killing
// the connection.
func Recovery(logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer observability.RecoverPanicWithCallback(
				logger.WithField("path", r.URL.Path),
				"http handler",
				func() {
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				},
			)
			next.ServeHTTP(w, r)
		})
	}
}
