package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/llmgate/llmgate/config"
	"github.com/llmgate/llmgate/domain/principal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  api_key: sk-test
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Upstream.URL != "https://api.anthropic.com" {
		t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
	}
	if cfg.Upstream.Timeout != 300*time.Second {
		t.Errorf("Upstream.Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Auth.CacheTTL != 5*time.Minute {
		t.Errorf("Auth.CacheTTL = %v", cfg.Auth.CacheTTL)
	}
	if cfg.Usage.BatchSize != 100 || cfg.Usage.FlushInterval != 10*time.Second {
		t.Errorf("Usage = %+v", cfg.Usage)
	}
	if cfg.Relay.KeepaliveInterval != 25*time.Second {
		t.Errorf("Relay.KeepaliveInterval = %v", cfg.Relay.KeepaliveInterval)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
upstream:
  url: https://proxy.internal
  api_key: sk-test
  timeout: 120s
database:
  dsn: /var/lib/llmgate/gateway.db
usage:
  batch_size: 50
  flush_interval: 5s
relay:
  keepalive_interval: 15s
plans:
  custom:
    monthly_credits: 42000
    requests_per_minute: 7
logging:
  level: debug
  format: console
metrics:
  enabled: true
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Upstream.Timeout != 120*time.Second {
		t.Errorf("Upstream.Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Relay.KeepaliveInterval != 15*time.Second {
		t.Errorf("Relay = %+v", cfg.Relay)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false")
	}

	limits := cfg.Limits()
	if limits["custom"].MonthlyCredits != 42_000 || limits["custom"].RequestsPerMinute != 7 {
		t.Errorf("custom limits = %+v", limits["custom"])
	}
	// The default plan is always present so FindLimits never misses.
	if _, ok := limits[principal.DefaultPlan]; !ok {
		t.Error("default plan missing from configured catalog")
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: https://api.anthropic.com
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted config without upstream.api_key")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
upstream:
  api_key: sk-test
logging:
  level: loud
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted invalid logging.level")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LLMGATE_SERVER_PORT", "9999")
	t.Setenv("LLMGATE_UPSTREAM_API_KEY", "sk-from-env")

	path := writeConfig(t, `
server:
  port: 8081
upstream:
  api_key: sk-from-file
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Upstream.APIKey != "sk-from-env" {
		t.Errorf("Upstream.APIKey = %q, want env override", cfg.Upstream.APIKey)
	}
}

func TestExpandEnvInFile(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-expanded")
	path := writeConfig(t, `
upstream:
  api_key: ${TEST_PROVIDER_KEY}
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-expanded" {
		t.Errorf("Upstream.APIKey = %q", cfg.Upstream.APIKey)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LLMGATE_UPSTREAM_API_KEY", "sk-env-only")
	t.Setenv("LLMGATE_LOG_LEVEL", "warn")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-env-only" {
		t.Errorf("Upstream.APIKey = %q", cfg.Upstream.APIKey)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Setenv("LLMGATE_UPSTREAM_API_KEY", "")
	if _, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadWithFallback succeeded with no file and no env")
	}

	t.Setenv("LLMGATE_UPSTREAM_API_KEY", "sk-fallback")
	cfg, err := config.LoadWithFallback("")
	if err != nil {
		t.Fatalf("LoadWithFallback: %v", err)
	}
	if cfg.Upstream.APIKey != "sk-fallback" {
		t.Errorf("Upstream.APIKey = %q", cfg.Upstream.APIKey)
	}
}
