package repository

import (
	"context"
	"database/sql"
	"errors"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/policy/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := db.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, audit_id, rules, enabled, created_at FROM transition_policies WHERE id = $1`, id).
		Scan(&p.ID, &p.AuditID, &p.Rules, &p.Enabled, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByAudit returns all policies for the given audit. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByAudit(ctx context.Context, auditID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT id, audit_id, rules, enabled, created_at FROM transition_policies
		WHERE audit_id = $1 ORDER BY created_at, id`, auditID)
}

// GetEnabledPoliciesByAudit returns the enabled policies for the given audit.
func (r *PostgresRepository) GetEnabledPoliciesByAudit(ctx context.Context, auditID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT id, audit_id, rules, enabled, created_at FROM transition_policies
		WHERE audit_id = $1 AND enabled ORDER BY created_at, id`, auditID)
}

// Create persists the policy to the database. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO transition_policies (id, audit_id, rules, enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.AuditID, p.Rules, p.Enabled, p.CreatedAt)
	return err
}

func (r *PostgresRepository) DisableByAudit(ctx context.Context, auditID string) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE transition_policies SET enabled = FALSE WHERE audit_id = $1`, auditID)
	return err
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Policy, error) {
	rows, err := db.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.AuditID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
