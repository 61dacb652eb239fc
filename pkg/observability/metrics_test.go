package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	// Registering twice must panic via MustRegister on a fresh identical set.
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestObserveDecision(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveDecision("general", true, "")
	m.ObserveDecision("general", false, "BURST_LIMIT_EXCEEDED")

	allowed := testutil.ToFloat64(m.RateLimitDecisionsTotal.WithLabelValues("general", "true", "none"))
	assert.Equal(t, 1.0, allowed)

	denied := testutil.ToFloat64(m.RateLimitDecisionsTotal.WithLabelValues("general", "false", "BURST_LIMIT_EXCEEDED"))
	assert.Equal(t, 1.0, denied)
}

func TestObservePenalty_PlateauLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObservePenalty(1)
	m.ObservePenalty(4)
	m.ObservePenalty(9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitPenaltiesTotal.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitPenaltiesTotal.WithLabelValues("4+")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := m.HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/test", "418"))
	assert.Equal(t, 1.0, count)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveDecision("auth", false, "IP_BLOCKED")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taxbot_ratelimit_decisions_total")
}
