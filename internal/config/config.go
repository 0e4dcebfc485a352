// Package config loads the Discern configuration from an optional YAML file
// and DISCERN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/discern/internal/domain"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration. Defaults come from the profile named by
// DISCERN_PROFILE, then the YAML file at path (or DISCERN_CONFIG) is laid
// over them, then individual env overrides apply. An empty path with no
// DISCERN_CONFIG means defaults only.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if domain.Profile(os.Getenv("DISCERN_PROFILE")) == domain.ProfileService {
		cfg = domain.ServiceConfig()
	}

	if path == "" {
		path = os.Getenv("DISCERN_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) {
	cfg.Server.Port = envInt("DISCERN_PORT", cfg.Server.Port)
	cfg.Catalog.Path = envOrDefault("DISCERN_CATALOG", cfg.Catalog.Path)
	cfg.Rules.Path = envOrDefault("DISCERN_RULES", cfg.Rules.Path)

	cfg.Repository.Driver = envOrDefault("DISCERN_DB_DRIVER", cfg.Repository.Driver)
	if dsn := os.Getenv("DISCERN_DB_DSN"); dsn != "" {
		switch cfg.Repository.Driver {
		case "postgres":
			cfg.Repository.PostgresDSN = dsn
		default:
			cfg.Repository.SQLitePath = dsn
		}
	}

	cfg.Cache.Type = envOrDefault("DISCERN_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = envOrDefault("DISCERN_REDIS_ADDR", cfg.Cache.RedisAddr)

	cfg.EventBus.Type = envOrDefault("DISCERN_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = envOrDefault("DISCERN_NATS_URL", cfg.EventBus.NATSUrl)

	cfg.Quota.RequestsPerWindow = int64(envInt("DISCERN_QUOTA", int(cfg.Quota.RequestsPerWindow)))

	cfg.Assistant.Enabled = envBool("DISCERN_ASSISTANT", cfg.Assistant.Enabled)
	if envBool("DISCERN_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
}

// Validate rejects configurations the components cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if !oneOf(cfg.Repository.Driver, "", "none", "sqlite", "postgres") {
		errs = append(errs, fmt.Errorf("repository.driver %q unsupported", cfg.Repository.Driver))
	}
	if !oneOf(cfg.Cache.Type, "", "none", "memory", "redis", "two-phase") {
		errs = append(errs, fmt.Errorf("cache.type %q unsupported", cfg.Cache.Type))
	}
	if !oneOf(cfg.EventBus.Type, "", "none", "channel", "nats") {
		errs = append(errs, fmt.Errorf("eventBus.type %q unsupported", cfg.EventBus.Type))
	}
	if cfg.Assistant.Enabled && oneOf(cfg.EventBus.Type, "", "none") {
		errs = append(errs, errors.New("assistant requires an event bus"))
	}
	if cfg.Quota.RequestsPerWindow < 0 {
		errs = append(errs, errors.New("quota.requestsPerWindow must not be negative"))
	}
	return errors.Join(errs...)
}

// LogLevel maps logging.level onto slog.
func LogLevel(cfg *domain.Config) slog.Level {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
