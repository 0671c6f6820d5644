package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgate/llmgate/config"
)

func TestHolderGetAndReload(t *testing.T) {
	path := writeConfig(t, `
upstream:
  api_key: sk-test
logging:
  level: info
`)
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	if h.Get().Logging.Level != "info" {
		t.Errorf("Level = %q", h.Get().Logging.Level)
	}

	if err := os.WriteFile(path, []byte(`
upstream:
  api_key: sk-test
logging:
  level: debug
`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if h.Get().Logging.Level != "debug" {
		t.Errorf("Level after reload = %q", h.Get().Logging.Level)
	}
}

func TestHolderKeepsOldConfigOnBadReload(t *testing.T) {
	path := writeConfig(t, `
upstream:
  api_key: sk-test
`)
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	if err := os.WriteFile(path, []byte(`upstream: {url: ""}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("Reload accepted invalid config")
	}
	if h.Get().Upstream.APIKey != "sk-test" {
		t.Error("old config not retained after failed reload")
	}
}

func TestHolderOnErrorFiresOnFailedReload(t *testing.T) {
	path := writeConfig(t, `
upstream:
  api_key: sk-test
`)
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	errored := make(chan error, 1)
	h.OnError(func(err error) { errored <- err })

	if err := os.WriteFile(path, []byte(`upstream: {url: ""}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("Reload accepted invalid config")
	}
	select {
	case err := <-errored:
		if err == nil {
			t.Error("OnError received nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("OnError callback not invoked on failed reload")
	}
}

func TestHolderOnChange(t *testing.T) {
	path := writeConfig(t, `
upstream:
  api_key: sk-test
`)
	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer h.Stop()

	called := make(chan *config.Config, 1)
	h.OnChange(func(c *config.Config) { called <- c })

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	select {
	case c := <-called:
		if c.Upstream.APIKey != "sk-test" {
			t.Errorf("callback config = %+v", c.Upstream)
		}
	case <-time.After(time.Second):
		t.Fatal("OnChange callback not invoked")
	}
}
