package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape of an optional config file. Only fields the
// file sets are applied; everything else keeps its env/default value.
type FileConfig struct {
	Server struct {
		Host       string `yaml:"host"`
		Port       string `yaml:"port"`
		HealthPort string `yaml:"health_port"`
	} `yaml:"server"`
	Storage struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		RedisDB     int    `yaml:"redis_db"`
	} `yaml:"storage"`
	RateLimit struct {
		BurstPerSecond       int    `yaml:"burst_per_second"`
		BurstPerMinute       int    `yaml:"burst_per_minute"`
		MonthlyQuestionLimit int    `yaml:"monthly_question_limit"`
		PlatformIPHeader     string `yaml:"platform_ip_header"`
		SweepInterval        string `yaml:"sweep_interval"`
		Distributed          *bool  `yaml:"distributed"`
	} `yaml:"ratelimit"`
	Observability struct {
		LogLevel       string `yaml:"log_level"`
		MetricsEnabled *bool  `yaml:"metrics_enabled"`
		OTelEnabled    *bool  `yaml:"otel_enabled"`
		OTelEndpoint   string `yaml:"otel_endpoint"`
	} `yaml:"observability"`
}

// LoadFile parses a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func (f *FileConfig) applyTo(cfg *Config) {
	if f.Server.Host != "" {
		cfg.Server.Host = f.Server.Host
	}
	if f.Server.Port != "" {
		cfg.Server.Port = f.Server.Port
	}
	if f.Server.HealthPort != "" {
		cfg.Server.HealthPort = f.Server.HealthPort
	}
	if f.Storage.PostgresURL != "" {
		cfg.Storage.PostgresURL = f.Storage.PostgresURL
	}
	if f.Storage.RedisURL != "" {
		cfg.Storage.RedisURL = f.Storage.RedisURL
	}
	if f.Storage.RedisDB != 0 {
		cfg.Storage.RedisDB = f.Storage.RedisDB
	}
	if f.RateLimit.BurstPerSecond > 0 {
		cfg.RateLimit.BurstPerSecond = f.RateLimit.BurstPerSecond
	}
	if f.RateLimit.BurstPerMinute > 0 {
		cfg.RateLimit.BurstPerMinute = f.RateLimit.BurstPerMinute
	}
	if f.RateLimit.MonthlyQuestionLimit > 0 {
		cfg.RateLimit.MonthlyQuestionLimit = f.RateLimit.MonthlyQuestionLimit
	}
	if f.RateLimit.PlatformIPHeader != "" {
		cfg.RateLimit.PlatformIPHeader = f.RateLimit.PlatformIPHeader
	}
	if f.RateLimit.SweepInterval != "" {
		if d, err := time.ParseDuration(f.RateLimit.SweepInterval); err == nil {
			cfg.RateLimit.SweepInterval = d
		}
	}
	if f.RateLimit.Distributed != nil {
		cfg.RateLimit.Distributed = *f.RateLimit.Distributed
	}
	if f.Observability.LogLevel != "" {
		cfg.Observability.LogLevel = parseLogLevel(f.Observability.LogLevel)
	}
	if f.Observability.MetricsEnabled != nil {
		cfg.Observability.MetricsEnabled = *f.Observability.MetricsEnabled
	}
	if f.Observability.OTelEnabled != nil {
		cfg.Observability.OTelEnabled = *f.Observability.OTelEnabled
	}
	if f.Observability.OTelEndpoint != "" {
		cfg.Observability.OTelEndpoint = f.Observability.OTelEndpoint
	}
}
