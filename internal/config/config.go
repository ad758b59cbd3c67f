package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
	// AllowedOrigins lists the browser origins permitted to call the
	// staff API. Empty means the local dev frontend only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds optional Redis settings. When Addr is empty the cron
// lease falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SESConfig holds AWS SES transport settings.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SendTimeout returns the per-send timeout as a duration.
func (c SESConfig) SendTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig holds settings for the hosted auth backend used to verify
// staff sessions.
type AuthConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// DevMode skips session verification. Never enable in production.
	DevMode bool `yaml:"dev_mode"`
}

// EngineConfig holds the knobs for the chunk processor and cron driver.
// The wall-clock budget must leave headroom under the scheduler platform's
// hard invocation limit.
type EngineConfig struct {
	ChunkSize             int    `yaml:"chunk_size"`
	BudgetSeconds         int    `yaml:"budget_seconds"`
	StallThresholdMinutes int    `yaml:"stall_threshold_minutes"`
	LeaseSeconds          int    `yaml:"lease_seconds"`
	CronSecret            string `yaml:"cron_secret"`
	// InternalTickMinutes > 0 runs the cron driver on an in-process ticker
	// in addition to the HTTP trigger. Useful for single-host deployments.
	InternalTickMinutes int `yaml:"internal_tick_minutes"`
}

// Budget returns the per-invocation wall-clock budget.
func (c EngineConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSeconds) * time.Second
}

// StallThreshold returns the updated_at staleness threshold for stall
// detection.
func (c EngineConfig) StallThreshold() time.Duration {
	return time.Duration(c.StallThresholdMinutes) * time.Minute
}

// LeaseTTL returns the cron run lease TTL.
func (c EngineConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first so secrets can live there locally
// and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AUTH_BASE_URL"); v != "" {
		cfg.Auth.BaseURL = v
	}
	if v := os.Getenv("AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Engine.CronSecret = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DEV_MODE"); v == "true" {
		cfg.Auth.DevMode = true
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 10
	}
	if cfg.Engine.ChunkSize == 0 {
		cfg.Engine.ChunkSize = 200
	}
	if cfg.Engine.BudgetSeconds == 0 {
		cfg.Engine.BudgetSeconds = 50
	}
	if cfg.Engine.StallThresholdMinutes == 0 {
		cfg.Engine.StallThresholdMinutes = 120
	}
	if cfg.Engine.LeaseSeconds == 0 {
		cfg.Engine.LeaseSeconds = 90
	}
}
