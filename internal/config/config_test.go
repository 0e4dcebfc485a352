package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/discern/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "discern.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCERN_CONFIG", "")
	t.Setenv("DISCERN_PROFILE", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Profile != domain.ProfileStandalone {
		t.Errorf("expected standalone profile, got %s", cfg.Profile)
	}
	if cfg.Repository.Driver != "none" || cfg.Cache.Type != "memory" || cfg.EventBus.Type != "none" {
		t.Errorf("unexpected standalone components: %+v", cfg)
	}
	if cfg.Quota.RequestsPerWindow != 0 {
		t.Errorf("expected quota off, got %d", cfg.Quota.RequestsPerWindow)
	}
}

func TestLoadServiceProfile(t *testing.T) {
	t.Setenv("DISCERN_PROFILE", "service")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repository.Driver != "sqlite" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected service components: %+v", cfg)
	}
	if cfg.Quota.RequestsPerWindow != 600 {
		t.Errorf("expected quota 600, got %d", cfg.Quota.RequestsPerWindow)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
catalog:
  path: /etc/discern/catalog.yaml
cache:
  type: redis
  redisAddr: redis:6379
quota:
  requestsPerWindow: 10
  window: 30s
assistant:
  enabled: true
  timeout: 2s
eventBus:
  type: nats
  natsUrl: nats://nats:4222
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unset fields should keep defaults, got host %q", cfg.Server.Host)
	}
	if cfg.Catalog.Path != "/etc/discern/catalog.yaml" {
		t.Errorf("unexpected catalog path %q", cfg.Catalog.Path)
	}
	if cfg.Quota.Window != 30*time.Second {
		t.Errorf("expected 30s window, got %v", cfg.Quota.Window)
	}
	if !cfg.Assistant.Enabled || cfg.Assistant.Timeout != 2*time.Second {
		t.Errorf("unexpected assistant config: %+v", cfg.Assistant)
	}
	if cfg.Assistant.Topic != domain.TopicAssistantRequest {
		t.Errorf("expected default assistant topic, got %q", cfg.Assistant.Topic)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	t.Setenv("DISCERN_PORT", "7070")
	t.Setenv("DISCERN_DB_DRIVER", "postgres")
	t.Setenv("DISCERN_DB_DSN", "postgres://discern@db/discern")
	t.Setenv("DISCERN_BUS", "channel")
	t.Setenv("DISCERN_ASSISTANT", "true")
	t.Setenv("DISCERN_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env should override file port, got %d", cfg.Server.Port)
	}
	if cfg.Repository.PostgresDSN != "postgres://discern@db/discern" {
		t.Errorf("unexpected postgres DSN %q", cfg.Repository.PostgresDSN)
	}
	if !cfg.Assistant.Enabled {
		t.Error("expected assistant enabled")
	}
	if LogLevel(cfg) != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", LogLevel(cfg))
	}
}

func TestSQLiteDSNOverride(t *testing.T) {
	t.Setenv("DISCERN_DB_DRIVER", "sqlite")
	t.Setenv("DISCERN_DB_DSN", "/var/lib/discern.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repository.SQLitePath != "/var/lib/discern.db" {
		t.Errorf("unexpected sqlite path %q", cfg.Repository.SQLitePath)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "MalformedYAML", body: "server: [\n"},
		{name: "BadDriver", body: "repository:\n  driver: mysql\n"},
		{name: "BadPort", body: "server:\n  port: 70000\n"},
		{name: "AssistantWithoutBus", body: "assistant:\n  enabled: true\n"},
		{name: "NegativeQuota", body: "quota:\n  requestsPerWindow: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
