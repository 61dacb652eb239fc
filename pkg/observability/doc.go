// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry wiring, health checks, and panic recovery helpers for the
// taxbot backend.
//
// # Logging
//
// Logger wraps log/slog with a JSON handler:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("client_ip", ip).Warn("rate limit violation")
//
// # Metrics
//
// Metrics holds the Prometheus instruments for rate-limit decisions and HTTP
// traffic. Register against a dedicated registry so tests stay isolated:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//
// # Health
//
// HealthChecker exposes Liveness and Readiness HTTP handlers that probe the
// user store database and the optional Redis backend.
package observability
