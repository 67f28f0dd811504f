package domain

import "time"

// Config holds the complete fraudlens configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository  RepositoryConfig  `json:"repository" yaml:"repository"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	EventBus    EventBusConfig    `json:"eventBus" yaml:"eventBus"`
	Narrative   NarrativeConfig   `json:"narrative" yaml:"narrative"`
	Attribution AttributionConfig `json:"attribution" yaml:"attribution"`
	Worker      WorkerConfig      `json:"worker" yaml:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds
}

// NarrativeConfig holds text-generation settings.
type NarrativeConfig struct {
	// Provider is the text-generation backend: "openai" or "gemini"
	Provider string `json:"provider" yaml:"provider"`
	BaseURL  string `json:"baseUrl" yaml:"baseUrl"`
	APIKey   string `json:"-" yaml:"apiKey"`

	// Model is the default model identifier; requests may override it.
	Model       string  `json:"model" yaml:"model"`
	MaxTokens int    `json:"maxTokens" yaml:"maxTokens"`

	// Temperature is the sampling temperature. Nil means DefaultTemperature;
	// an explicit 0 is honoured.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature"`

	// Timeout bounds a single external call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxConcurrency bounds parallel external calls in a batch.
	MaxConcurrency int `json:"maxConcurrency" yaml:"maxConcurrency"`

	// CacheTTL is how long generated narratives are cached (0 disables).
	CacheTTL time.Duration `json:"cacheTTL" yaml:"cacheTTL"`
}

// AttributionConfig holds feature attribution settings.
type AttributionConfig struct {
	TopK int `json:"topK" yaml:"topK"`
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	TenantIDs []string `json:"tenantIds" yaml:"tenantIds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Narrative defaults
const (
	DefaultModel          = "gpt-4o-mini"
	DefaultMaxTokens      = 150
	DefaultTemperature    = 0.3
	DefaultTimeout        = 30 * time.Second
	DefaultMaxConcurrency = 8
	DefaultTopK           = 5
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudlens.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Narrative: NarrativeConfig{
			Provider:       "openai",
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			Timeout:        DefaultTimeout,
			MaxConcurrency: DefaultMaxConcurrency,
			CacheTTL:       24 * time.Hour,
		},
		Attribution: AttributionConfig{
			TopK: DefaultTopK,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudlens",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraudlens",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
