package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
app:
  env: dev
  lang: en-GB
telegram:
  token: "123:abc"
  admin_chat_id: 42
postgres:
  dsn: "postgres://localhost/slips"
labapi:
  base_url: "https://lab.example.com/api"
`

func TestLoadValidConfigWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.App.Env != "dev" {
		t.Errorf("Expected env dev, got %s", cfg.App.Env)
	}
	if cfg.App.Lang != "en" {
		t.Errorf("Expected lang normalised to en, got %s", cfg.App.Lang)
	}
	if cfg.Telegram.AdminChatID != 42 {
		t.Errorf("Expected admin chat 42, got %d", cfg.Telegram.AdminChatID)
	}
	if cfg.Wizard.Debounce != 300*time.Millisecond {
		t.Errorf("Expected default debounce 300ms, got %s", cfg.Wizard.Debounce)
	}
	if cfg.Wizard.ProductsPerPage != 8 {
		t.Errorf("Expected default page size 8, got %d", cfg.Wizard.ProductsPerPage)
	}
	if cfg.TransitionCache.Path != "data/transition.db" {
		t.Errorf("Unexpected transition cache path %s", cfg.TransitionCache.Path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("APP_WIZARD_PRODUCTS_PER_PAGE", "12")
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Wizard.ProductsPerPage != 12 {
		t.Errorf("Expected env override 12, got %d", cfg.Wizard.ProductsPerPage)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(writeConfig(t, "app:\n  env: dev\n"))
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"telegram.token", "postgres.dsn", "labapi.base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidateRejectsBadLang(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	cfg.App.Lang = "not a tag!"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected invalid language tag to be rejected")
	}
}

func TestLabAPITimeout(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.LabAPI.Timeout != 0 {
		t.Errorf("Expected no default lab timeout, got %s", cfg.LabAPI.Timeout)
	}

	cfg.LabAPI.Timeout = -time.Second
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "labapi.timeout") {
		t.Errorf("Expected a negative timeout to be rejected, got %v", err)
	}
}
