// Command taxbot-gateway runs the rate-limiting API gateway in front of the
// taxbot backend. It enforces the multi-tier limits on every route, serves
// the public quota status endpoint, and exposes health and metrics probes on
// a separate port.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fdicloud/taxbot-backend/pkg/api"
	"github.com/fdicloud/taxbot-backend/pkg/config"
	"github.com/fdicloud/taxbot-backend/pkg/middleware"
	"github.com/fdicloud/taxbot-backend/pkg/observability"
	"github.com/fdicloud/taxbot-backend/pkg/ratelimit"
	"github.com/fdicloud/taxbot-backend/pkg/users"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
		}
		defer observability.ShutdownOTel(context.Background(), otelProviders, logger)
	}

	// User store: postgres when configured, in-memory otherwise.
	var (
		store users.Service
		db    *sql.DB
	)
	if cfg.Storage.PostgresURL != "" {
		db, err = sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		store, err = users.NewPostgresService(db)
		if err != nil {
			log.Fatalf("Failed to initialize user store: %v", err)
		}
		log.Info("Using postgres user store")
	} else {
		store = users.NewMemoryService()
		log.Warn("No postgres URL configured, using in-memory user store")
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		opts.DB = cfg.Storage.RedisDB
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warnf("Redis unreachable at startup, shared-state limiting will fail open: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		store = users.NewInstrumentedService(store, metrics)
	}

	rlConfig := cfg.RateLimiterConfig()
	limiter := ratelimit.NewLimiter(rlConfig, store, logger, metrics)

	mw := middleware.NewRateLimitMiddleware(limiter, logger)
	statusHandler := api.NewRateLimitStatusHandler(limiter, logger)

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	if metrics != nil {
		r.Use(metrics.HTTPMetricsMiddleware)
	}
	if cfg.RateLimit.Distributed && redisClient != nil {
		redisLimiter := ratelimit.NewRedisLimiter(redisClient, rlConfig, logger)
		r.Use(middleware.Distributed(redisLimiter, ratelimit.CategoryGeneral, rlConfig.PlatformIPHeader))
		log.Info("Distributed rate limiting enabled")
	}
	r.Handle("/api/rate-limit-status", mw.General(statusHandler)).Methods(http.MethodPost)

	// Stale guard state is pruned on a schedule rather than per request.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.RateLimit.SweepInterval), func() {
		defer observability.RecoverPanic(logger, "rate limit sweep")
		stats := limiter.Sweep()
		logger.WithField("penalties", stats.Penalties).
			WithField("burst_buckets", stats.BurstBuckets).
			WithField("ip_buckets", stats.IPBuckets).
			Debug("rate limit sweep completed")
	}); err != nil {
		log.Fatalf("Failed to schedule sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Health and metrics on a separate port for k8s probes.
	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Health server error: %v", err)
		}
	}()

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Infof("taxbot gateway listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Health server shutdown error: %v", err)
	}
	log.Info("Shutdown complete")
}
