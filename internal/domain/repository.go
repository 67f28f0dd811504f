// Package domain defines the core interfaces and types for fraudlens.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Explanation operations
	SaveExplanation(ctx context.Context, tenantID string, rec *ExplainedRecord) error
	GetExplanation(ctx context.Context, tenantID string, id string) (*ExplainedRecord, error)
	GetExplanationByTx(ctx context.Context, tenantID string, txID string) (*ExplainedRecord, error)
	ListExplanations(ctx context.Context, tenantID string, limit int) ([]*ExplainedRecord, error)

	// Analyst feedback operations
	SaveFeedback(ctx context.Context, tenantID string, fb *Feedback) error
	ListFeedback(ctx context.Context, tenantID string) ([]*Feedback, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"-" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDB" yaml:"postgresDB"`
	PostgresSSLMode  string `json:"postgresSSLMode" yaml:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
