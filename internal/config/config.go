// Package config loads the platform configuration from YAML with
// environment-variable overrides for deployment secrets.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SES        SESConfig        `yaml:"ses"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Compliance ComplianceConfig `yaml:"compliance"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host; containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the Redis connection for the dispatch queue and the
// global outbound rate limiter.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES sending configuration.
type SESConfig struct {
	Region         string `yaml:"region"`
	ConfigSet      string `yaml:"configuration_set"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-send timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TrackingConfig holds the public tracking endpoint configuration.
type TrackingConfig struct {
	// BaseURL is the externally visible root of the tracking service,
	// e.g. "https://links.example-awareness.com". Tracking pixels and
	// rewritten links are built against it.
	BaseURL string `yaml:"base_url"`
	// DefaultRedirectURL is where unknown or untracked clicks land.
	DefaultRedirectURL string `yaml:"default_redirect_url"`
	Port               int    `yaml:"port"`
}

// DispatchConfig holds worker-side send loop configuration.
type DispatchConfig struct {
	// GlobalRatePerMinute caps outbound email across all running campaigns
	// to stay under provider throttling.
	GlobalRatePerMinute int `yaml:"global_rate_per_minute"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxJobRetries       int `yaml:"max_job_retries"`
}

// PollInterval returns the queue poll interval as a duration.
func (c DispatchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ComplianceConfig holds the thresholds and weights for compliance scoring.
type ComplianceConfig struct {
	CoverageThreshold           float64 `yaml:"coverage_threshold"`
	TrainingCompletionThreshold float64 `yaml:"training_completion_threshold"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Tracking.Port == 0 {
		cfg.Tracking.Port = 8081
	}
	if cfg.Tracking.DefaultRedirectURL == "" {
		cfg.Tracking.DefaultRedirectURL = "https://security-awareness.example.com/thanks"
	}
	if cfg.Dispatch.GlobalRatePerMinute == 0 {
		cfg.Dispatch.GlobalRatePerMinute = 600
	}
	if cfg.Dispatch.PollIntervalSeconds == 0 {
		cfg.Dispatch.PollIntervalSeconds = 5
	}
	if cfg.Dispatch.MaxJobRetries == 0 {
		cfg.Dispatch.MaxJobRetries = 3
	}
	if cfg.Compliance.CoverageThreshold == 0 {
		cfg.Compliance.CoverageThreshold = 80
	}
	if cfg.Compliance.TrainingCompletionThreshold == 0 {
		cfg.Compliance.TrainingCompletionThreshold = 90
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}
