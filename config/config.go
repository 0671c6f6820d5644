// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/llmgate/llmgate/domain/principal"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Upstream UpstreamConfig        `yaml:"upstream"`
	Auth     AuthConfig            `yaml:"auth"`
	Database DatabaseConfig        `yaml:"database"`
	Usage    UsageConfig           `yaml:"usage"`
	Relay    RelayConfig           `yaml:"relay"`
	Plans    map[string]PlanConfig `yaml:"plans"`
	Logging  LoggingConfig         `yaml:"logging"`
	Metrics  MetricsConfig         `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// No write timeout by default: SSE responses can run for minutes.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures the LLM provider endpoint.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig configures token authentication.
type AuthConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Headers lists extra request headers checked for the gateway token
	// after Authorization and x-api-key.
	Headers []string `yaml:"headers"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// UsageConfig configures the async usage recorder.
type UsageConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"`
}

// RelayConfig configures the SSE relay.
type RelayConfig struct {
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// PlanConfig configures quota limits for one plan.
type PlanConfig struct {
	MonthlyCredits    int64 `yaml:"monthly_credits"`
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	TokensPerMinute   int64 `yaml:"tokens_per_minute"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Limits converts the configured plan catalog to the domain form. An empty
// catalog falls back to the built-in defaults.
func (c *Config) Limits() map[string]principal.Limits {
	if len(c.Plans) == 0 {
		return principal.DefaultLimits
	}
	out := make(map[string]principal.Limits, len(c.Plans))
	for name, p := range c.Plans {
		out[name] = principal.Limits{
			MonthlyCredits:    p.MonthlyCredits,
			RequestsPerMinute: p.RequestsPerMinute,
			TokensPerMinute:   p.TokensPerMinute,
		}
	}
	if _, ok := out[principal.DefaultPlan]; !ok {
		out[principal.DefaultPlan] = principal.DefaultLimits[principal.DefaultPlan]
	}
	return out
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
//
// Environment variables:
//
//	LLMGATE_UPSTREAM_URL     - Provider API URL (default: https://api.anthropic.com)
//	LLMGATE_UPSTREAM_API_KEY - Provider API key (required)
//	LLMGATE_DATABASE_DSN     - Database path (default: llmgate.db)
//	LLMGATE_SERVER_HOST      - Server host (default: 0.0.0.0)
//	LLMGATE_SERVER_PORT      - Server port (default: 8080)
//	LLMGATE_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	LLMGATE_LOG_FORMAT       - Log format: json or console (default: json)
//	LLMGATE_METRICS_ENABLED  - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("LLMGATE_UPSTREAM_API_KEY") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set LLMGATE_UPSTREAM_API_KEY")
}

// applyEnvOverrides applies LLMGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLMGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LLMGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LLMGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("LLMGATE_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("LLMGATE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	if v := os.Getenv("LLMGATE_AUTH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.CacheTTL = d
		}
	}

	if v := os.Getenv("LLMGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("LLMGATE_USAGE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Usage.BatchSize = n
		}
	}
	if v := os.Getenv("LLMGATE_USAGE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Usage.FlushInterval = d
		}
	}

	if v := os.Getenv("LLMGATE_RELAY_KEEPALIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Relay.KeepaliveInterval = d
		}
	}

	if v := os.Getenv("LLMGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LLMGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("LLMGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}

	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = "https://api.anthropic.com"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 300 * time.Second
	}

	if cfg.Auth.CacheTTL == 0 {
		cfg.Auth.CacheTTL = 5 * time.Minute
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "llmgate.db"
	}

	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 10 * time.Second
	}
	if cfg.Usage.MaxBuffer == 0 {
		cfg.Usage.MaxBuffer = 10_000
	}

	if cfg.Relay.KeepaliveInterval == 0 {
		cfg.Relay.KeepaliveInterval = 25 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if cfg.Upstream.APIKey == "" {
		return fmt.Errorf("upstream.api_key is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}

	for name, p := range cfg.Plans {
		if p.RequestsPerMinute < 0 || p.MonthlyCredits < 0 {
			return fmt.Errorf("plans.%s: limits must be non-negative", name)
		}
	}

	return nil
}
