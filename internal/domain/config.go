package domain

import "time"

// Config holds the complete Discern configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Profile selects the default component set
	Profile Profile `yaml:"profile"`

	// Catalog source; empty path uses the embedded catalog
	Catalog CatalogConfig `yaml:"catalog"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Service features
	Rules     RulesConfig     `yaml:"rules"`
	Quota     QuotaConfig     `yaml:"quota"`
	Assistant AssistantConfig `yaml:"assistant"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Profile represents a deployment profile.
type Profile string

const (
	// ProfileStandalone runs pure scoring with an in-memory cache only.
	ProfileStandalone Profile = "standalone"

	// ProfileService adds the audit log, event bus and quotas.
	ProfileService Profile = "service"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// CatalogConfig points at an operator-supplied pattern catalog.
type CatalogConfig struct {
	Path string `yaml:"path"` // .json, .yaml or .yml
}

// RulesConfig configures escalation rules.
type RulesConfig struct {
	Path       string `yaml:"path"`
	MaxWorkers int    `yaml:"maxWorkers"`
}

// QuotaConfig limits requests per tenant in a fixed window.
// A zero limit disables the quota.
type QuotaConfig struct {
	RequestsPerWindow int64         `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
}

// AssistantConfig configures the conversational upstream reached over the bus.
type AssistantConfig struct {
	Enabled bool          `yaml:"enabled"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
	Endpoint    string `yaml:"endpoint"`
}

// DefaultConfig returns the standalone configuration.
// Scoring works with nothing but the embedded catalog and a memory cache.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver: "none",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type: "none",
		},
		Rules: RulesConfig{
			MaxWorkers: 4,
		},
		Assistant: AssistantConfig{
			Topic:   TopicAssistantRequest,
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "discern",
		},
	}
}

// ServiceConfig returns the configuration for a full service deployment:
// SQLite audit log, channel bus and per-tenant quotas.
func ServiceConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileService
	cfg.Repository = RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: "./discern.db",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "channel",
		ChannelBufferSize: 1000,
	}
	cfg.Quota = QuotaConfig{
		RequestsPerWindow: 600,
		Window:            time.Minute,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
