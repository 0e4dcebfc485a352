// Package domain defines the core interfaces and types for Discern.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the analysis audit log.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Analysis records
	SaveAnalysis(ctx context.Context, tenantID string, a *Analysis) error
	GetAnalysis(ctx context.Context, tenantID string, id string) (*Analysis, error)
	ListAnalyses(ctx context.Context, tenantID string, kind AnalysisKind, limit int) ([]*Analysis, error)

	// Escalation rules
	SaveRule(ctx context.Context, tenantID string, rule *EscalationRule) error
	ListRules(ctx context.Context, tenantID string) ([]*EscalationRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "none", "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific. PostgresDSN, when set, overrides the discrete fields.
	PostgresDSN      string `yaml:"postgresDSN"`
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
