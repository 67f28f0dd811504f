package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/llm"
)

// isolate runs the test from an empty directory with provider keys cleared.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "FRAUDLENS_TIER", "FRAUDLENS_LLM_PROVIDER", "FRAUDLENS_LLM_MODEL", "DEFAULT_MODEL", "FRAUDLENS_PORT"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected community stack: %s / %s", cfg.Repository.Driver, cfg.EventBus.Type)
	}
	if cfg.Narrative.Model != domain.DefaultModel || cfg.Attribution.TopK != domain.DefaultTopK {
		t.Errorf("unexpected narrative defaults: %+v", cfg.Narrative)
	}
}

func TestLoadProTier(t *testing.T) {
	isolate(t)
	t.Setenv("FRAUDLENS_TIER", "pro")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierPro || cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" {
		t.Errorf("expected pro stack, got %s %s %s", cfg.Tier, cfg.Repository.Driver, cfg.EventBus.Type)
	}
	if !cfg.Worker.Enabled {
		t.Error("expected worker enabled for pro tier")
	}
}

func TestLoadYAMLAndEnvPrecedence(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "fraudlens.yaml")
	yamlDoc := `
server:
  port: 9090
narrative:
  provider: unavailable
  timeout: 10s
  maxConcurrency: 2
attribution:
  topK: 3
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRAUDLENS_TOP_K", "4")
	t.Setenv("FRAUDLENS_TENANTS", "bank-a, bank-b,,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port from yaml, got %d", cfg.Server.Port)
	}
	if cfg.Narrative.Timeout != 10*time.Second || cfg.Narrative.MaxConcurrency != 2 {
		t.Errorf("unexpected narrative overlay: %+v", cfg.Narrative)
	}
	if cfg.Attribution.TopK != 4 {
		t.Errorf("expected env topK to win, got %d", cfg.Attribution.TopK)
	}
	if diff := cmp.Diff([]string{"bank-a", "bank-b"}, cfg.Worker.TenantIDs); diff != "" {
		t.Errorf("tenants mismatch (-want +got):\n%s", diff)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("fields absent from yaml should keep defaults, got host %q", cfg.Server.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "absent.yaml")); err != nil {
		t.Errorf("missing file should fall back to defaults, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0o600)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadGeminiKey(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Narrative.Provider != llm.ProviderGemini {
		t.Errorf("expected gemini provider, got %s", cfg.Narrative.Provider)
	}
	if cfg.Narrative.Model != llm.DefaultGeminiModel {
		t.Errorf("expected gemini default model, got %s", cfg.Narrative.Model)
	}
}

func TestLoadTemperature(t *testing.T) {
	dir := isolate(t)
	t.Setenv("FRAUDLENS_LLM_TEMPERATURE", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Narrative.Temperature != nil {
		t.Errorf("expected unset temperature by default, got %v", *cfg.Narrative.Temperature)
	}

	path := filepath.Join(dir, "zero.yaml")
	if err := os.WriteFile(path, []byte("narrative:\n  temperature: 0\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Narrative.Temperature == nil || *cfg.Narrative.Temperature != 0 {
		t.Errorf("expected explicit temperature 0 from yaml, got %v", cfg.Narrative.Temperature)
	}

	t.Setenv("FRAUDLENS_LLM_TEMPERATURE", "0.7")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Narrative.Temperature == nil || *cfg.Narrative.Temperature != 0.7 {
		t.Errorf("expected env temperature 0.7, got %v", cfg.Narrative.Temperature)
	}
}

func TestLoadDefaultModel(t *testing.T) {
	isolate(t)
	t.Setenv("DEFAULT_MODEL", "gpt-4o")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Narrative.Model != "gpt-4o" {
		t.Errorf("expected DEFAULT_MODEL to apply, got %s", cfg.Narrative.Model)
	}

	t.Setenv("FRAUDLENS_LLM_MODEL", "gpt-4o-mini")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Narrative.Model != "gpt-4o-mini" {
		t.Errorf("expected FRAUDLENS_LLM_MODEL to win, got %s", cfg.Narrative.Model)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	os.Unsetenv("FRAUDLENS_PORT")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FRAUDLENS_PORT=7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("FRAUDLENS_PORT") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port from .env, got %d", cfg.Server.Port)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("FRAUDLENS_PORT", "eighty")

	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"port", func(c *domain.Config) { c.Server.Port = 0 }},
		{"driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }},
		{"provider", func(c *domain.Config) { c.Narrative.Provider = "palm" }},
		{"topK", func(c *domain.Config) { c.Attribution.TopK = 0 }},
		{"temperature", func(c *domain.Config) { t := 3.0; c.Narrative.Temperature = &t }},
	}

	if err := Validate(domain.DefaultConfig()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	cfg := domain.DefaultConfig()
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		cfg.Logging.Level = level
		if got := LogLevel(cfg); got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
