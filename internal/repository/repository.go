// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps ListExplanations when no limit is given.
const DefaultListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveExplanation stores an explained record with tenant isolation.
// Saving the same ID again replaces the stored payload.
func (r *SQLRepository) SaveExplanation(ctx context.Context, tenantID string, rec *domain.ExplainedRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rec == nil || rec.ID == "" || rec.Record.ID == "" {
		return fmt.Errorf("%w: explanation id and transaction id are required", ErrInvalidInput)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode explanation: %w", err)
	}

	query := `
		INSERT INTO explanations (
			id, tenant_id, tx_id, fraud_prediction, rule_summary,
			narrative_status, created_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_summary = excluded.rule_summary,
			narrative_status = excluded.narrative_status,
			payload = excluded.payload
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.Record.ID, rec.Record.FraudPrediction,
		rec.RuleSummary, rec.Metadata.NarrativeStatus,
		rec.CreatedAt, string(payload),
	)
	return err
}

// GetExplanation retrieves an explanation by ID with tenant isolation.
func (r *SQLRepository) GetExplanation(ctx context.Context, tenantID string, id string) (*domain.ExplainedRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT payload FROM explanations WHERE tenant_id = ? AND id = ?`
	return r.scanExplanation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
}

// GetExplanationByTx retrieves the latest explanation for a transaction.
func (r *SQLRepository) GetExplanationByTx(ctx context.Context, tenantID string, txID string) (*domain.ExplainedRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM explanations
		WHERE tenant_id = ? AND tx_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanExplanation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
}

// ListExplanations returns the most recent explanations for a tenant.
func (r *SQLRepository) ListExplanations(ctx context.Context, tenantID string, limit int) ([]*domain.ExplainedRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT payload FROM explanations
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ExplainedRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeExplanation(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveFeedback stores analyst feedback with tenant isolation.
func (r *SQLRepository) SaveFeedback(ctx context.Context, tenantID string, fb *domain.Feedback) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if fb == nil || fb.ID == "" || fb.ExplanationID == "" {
		return fmt.Errorf("%w: feedback id and explanation id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO feedback (
			id, tenant_id, explanation_id, tx_id,
			clarity_rating, accuracy_rating, actionability_rating,
			comments, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		fb.ID, tenantID, fb.ExplanationID, fb.TxID,
		fb.Clarity, fb.Accuracy, fb.Actionability,
		fb.Comments, fb.CreatedAt,
	)
	return err
}

// ListFeedback retrieves all feedback for a tenant, oldest first.
func (r *SQLRepository) ListFeedback(ctx context.Context, tenantID string) ([]*domain.Feedback, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, explanation_id, tx_id,
			   clarity_rating, accuracy_rating, actionability_rating,
			   comments, created_at
		FROM feedback
		WHERE tenant_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Feedback
	for rows.Next() {
		var fb domain.Feedback
		var comments sql.NullString

		if err := rows.Scan(
			&fb.ID, &fb.TenantID, &fb.ExplanationID, &fb.TxID,
			&fb.Clarity, &fb.Accuracy, &fb.Actionability,
			&comments, &fb.CreatedAt,
		); err != nil {
			return nil, err
		}
		fb.Comments = comments.String
		items = append(items, &fb)
	}

	return items, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) scanExplanation(row *sql.Row) (*domain.ExplainedRecord, error) {
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeExplanation(payload)
}

func decodeExplanation(payload string) (*domain.ExplainedRecord, error) {
	var rec domain.ExplainedRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode explanation: %w", err)
	}
	return &rec, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
