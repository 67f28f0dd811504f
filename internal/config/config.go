// Package config assembles the fraudlens configuration from tier defaults, an
// optional YAML file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/llm"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every fraudlens environment variable.
const EnvPrefix = "FRAUDLENS_"

// ErrInvalidConfig is returned when the loaded configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load builds the configuration. Precedence, lowest first: tier defaults
// (FRAUDLENS_TIER), the YAML file at path, then environment variables.
// An empty path or a missing file is not an error. A .env file in the
// working directory is loaded without overriding variables already set.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := domain.DefaultConfig()
	if domain.Tier(env("TIER")) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Narrative.Provider == llm.ProviderGemini && cfg.Narrative.Model == domain.DefaultModel {
		cfg.Narrative.Model = llm.DefaultGeminiModel
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func applyEnv(cfg *domain.Config) error {
	var errs []error
	setString := func(name string, dst *string) {
		if v := env(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := env(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v := env(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	setString("HOST", &cfg.Server.Host)
	setInt("PORT", &cfg.Server.Port)

	setString("DB_DRIVER", &cfg.Repository.Driver)
	setString("SQLITE_PATH", &cfg.Repository.SQLitePath)
	setString("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	setInt("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	setString("POSTGRES_USER", &cfg.Repository.PostgresUser)
	setString("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	setString("POSTGRES_DB", &cfg.Repository.PostgresDB)
	setString("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	setString("CACHE_TYPE", &cfg.Cache.Type)
	setString("REDIS_ADDR", &cfg.Cache.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	setString("BUS_TYPE", &cfg.EventBus.Type)
	setString("NATS_URL", &cfg.EventBus.NATSUrl)
	setString("NATS_TOKEN", &cfg.EventBus.NATSToken)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Narrative.Provider = llm.ProviderOpenAI
		cfg.Narrative.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Narrative.Provider = llm.ProviderGemini
		cfg.Narrative.APIKey = key
	}
	if model := os.Getenv("DEFAULT_MODEL"); model != "" {
		cfg.Narrative.Model = model
	}
	setString("LLM_PROVIDER", &cfg.Narrative.Provider)
	setString("LLM_API_KEY", &cfg.Narrative.APIKey)
	setString("LLM_BASE_URL", &cfg.Narrative.BaseURL)
	setString("LLM_MODEL", &cfg.Narrative.Model)
	setInt("LLM_MAX_CONCURRENCY", &cfg.Narrative.MaxConcurrency)
	if v := env("LLM_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLLM_TEMPERATURE: %w", EnvPrefix, err))
		} else {
			cfg.Narrative.Temperature = &t
		}
	}

	setInt("TOP_K", &cfg.Attribution.TopK)

	setBool("ASYNC_WORKER", &cfg.Worker.Enabled)
	if v := env("TENANTS"); v != "" {
		cfg.Worker.TenantIDs = splitList(v)
	}

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)
	if env("DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	setBool("TRACING", &cfg.Tracing.Enabled)
	setBool("METRICS", &cfg.Metrics.Enabled)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the values the pipeline cannot run without.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository driver %q", cfg.Repository.Driver))
	}
	switch cfg.Narrative.Provider {
	case llm.ProviderOpenAI, llm.ProviderGemini, llm.ProviderUnavailable:
	default:
		errs = append(errs, fmt.Errorf("unsupported narrative provider %q", cfg.Narrative.Provider))
	}
	if cfg.Attribution.TopK < 1 {
		errs = append(errs, fmt.Errorf("attribution topK must be at least 1, got %d", cfg.Attribution.TopK))
	}
	if cfg.Narrative.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("narrative maxConcurrency must not be negative"))
	}
	if t := cfg.Narrative.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("narrative temperature %.2f out of range [0,2]", *t))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LogLevel maps the configured level to slog.
func LogLevel(cfg *domain.Config) slog.Level {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
