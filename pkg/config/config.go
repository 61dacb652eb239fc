// Package config loads gateway configuration from the environment, with an
// optional YAML file overlay for deployments that prefer checked-in config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fdicloud/taxbot-backend/pkg/observability"
	"github.com/fdicloud/taxbot-backend/pkg/ratelimit"
)

// Config holds all gateway configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig holds the user store and shared-state backends. Both are
// optional: without postgres the gateway runs on the in-memory user store,
// without redis all rate limit state stays process-local.
type StorageConfig struct {
	PostgresURL string
	RedisURL    string
	RedisDB     int
}

// RateLimitConfig carries overrides for the limiter's defaults. Zero values
// mean "keep the default".
type RateLimitConfig struct {
	BurstPerSecond       int
	BurstPerMinute       int
	MonthlyQuestionLimit int
	PlatformIPHeader     string
	SweepInterval        time.Duration
	Distributed          bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables. If
// TAXBOT_CONFIG_FILE is set, that YAML file is read first and the
// environment overrides it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("TAXBOT_CONFIG_FILE", ""); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		fileCfg.applyTo(cfg)
		// Environment wins over the file.
		overlayEnv(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TAXBOT_HOST", "0.0.0.0"),
		Port:            getEnv("TAXBOT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TAXBOT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TAXBOT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TAXBOT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TAXBOT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TAXBOT_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL: getEnv("TAXBOT_POSTGRES_URL", ""),
		RedisURL:    getEnv("TAXBOT_REDIS_URL", ""),
		RedisDB:     getEnvInt("TAXBOT_REDIS_DB", 0),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		BurstPerSecond:       getEnvInt("TAXBOT_BURST_PER_SECOND", 0),
		BurstPerMinute:       getEnvInt("TAXBOT_BURST_PER_MINUTE", 0),
		MonthlyQuestionLimit: getEnvInt("TAXBOT_MONTHLY_QUESTION_LIMIT", 0),
		PlatformIPHeader:     getEnv("TAXBOT_PLATFORM_IP_HEADER", ""),
		SweepInterval:        getEnvDuration("TAXBOT_SWEEP_INTERVAL", 5*time.Minute),
		Distributed:          getEnvBool("TAXBOT_RATELIMIT_DISTRIBUTED", false),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("TAXBOT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TAXBOT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TAXBOT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TAXBOT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TAXBOT_OTEL_SERVICE_NAME", "taxbot-gateway"),
		OTelServiceVersion: getEnv("TAXBOT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TAXBOT_OTEL_INSECURE", true),
	}
}

// overlayEnv re-applies any environment variables on top of cfg; used after
// a file overlay so the environment keeps the last word.
func overlayEnv(cfg *Config) {
	if v := os.Getenv("TAXBOT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TAXBOT_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("TAXBOT_HEALTH_PORT"); v != "" {
		cfg.Server.HealthPort = v
	}
	if v := os.Getenv("TAXBOT_POSTGRES_URL"); v != "" {
		cfg.Storage.PostgresURL = v
	}
	if v := os.Getenv("TAXBOT_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := getEnvInt("TAXBOT_MONTHLY_QUESTION_LIMIT", 0); v > 0 {
		cfg.RateLimit.MonthlyQuestionLimit = v
	}
	if v := os.Getenv("TAXBOT_PLATFORM_IP_HEADER"); v != "" {
		cfg.RateLimit.PlatformIPHeader = v
	}
	if v := os.Getenv("TAXBOT_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = parseLogLevel(v)
	}
}

// RateLimiterConfig materializes a ratelimit.Config from the defaults plus
// any overrides set here.
func (c *Config) RateLimiterConfig() *ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	if c.RateLimit.BurstPerSecond > 0 {
		rl.BurstPerSecond = c.RateLimit.BurstPerSecond
	}
	if c.RateLimit.BurstPerMinute > 0 {
		rl.BurstPerMinute = c.RateLimit.BurstPerMinute
	}
	if c.RateLimit.MonthlyQuestionLimit > 0 {
		rl.MonthlyQuestionLimit = c.RateLimit.MonthlyQuestionLimit
	}
	if c.RateLimit.PlatformIPHeader != "" {
		rl.PlatformIPHeader = c.RateLimit.PlatformIPHeader
	}
	return rl
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.RateLimit.Distributed && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required for distributed rate limiting")
	}
	if c.RateLimit.SweepInterval < time.Second {
		return fmt.Errorf("sweep interval must be at least 1s")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
