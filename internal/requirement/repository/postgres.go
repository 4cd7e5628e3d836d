package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/requirement/domain"
)

const columns = `id, audit_id, document_type, description, mandatory, deadline, compliance_framework,
	priority_score, risk_level, auto_escalate, escalation_level, warned_deadline, created_by,
	created_at, updated_at, deleted_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a requirement repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetRequirementByID returns the requirement for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetRequirementByID(ctx context.Context, id string) (*domain.Requirement, error) {
	return r.get(ctx, `SELECT `+columns+` FROM requirements WHERE id = $1`, id)
}

// GetRequirementForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetRequirementForUpdate(ctx context.Context, id string) (*domain.Requirement, error) {
	return r.get(ctx, `SELECT `+columns+` FROM requirements WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) CreateRequirement(ctx context.Context, req *domain.Requirement) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO requirements (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		req.ID, req.AuditID, req.DocumentType, req.Description, req.Mandatory, req.Deadline, req.ComplianceFramework,
		req.PriorityScore, string(req.RiskLevel), req.AutoEscalate, req.EscalationLevel, req.WarnedDeadline, req.CreatedBy,
		req.CreatedAt, req.UpdatedAt, req.DeletedAt)
	return err
}

func (r *PostgresRepository) UpdateRequirement(ctx context.Context, req *domain.Requirement) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE requirements SET document_type = $2, description = $3, mandatory = $4, deadline = $5,
			compliance_framework = $6, priority_score = $7, risk_level = $8, auto_escalate = $9,
			escalation_level = $10, warned_deadline = $11, updated_at = $12, deleted_at = $13
		WHERE id = $1`,
		req.ID, req.DocumentType, req.Description, req.Mandatory, req.Deadline, req.ComplianceFramework,
		req.PriorityScore, string(req.RiskLevel), req.AutoEscalate, req.EscalationLevel, req.WarnedDeadline,
		req.UpdatedAt, req.DeletedAt)
	return err
}

func (r *PostgresRepository) ListRequirementsByAudit(ctx context.Context, auditID string) ([]*domain.Requirement, error) {
	return r.list(ctx, `SELECT `+columns+` FROM requirements
		WHERE audit_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`, auditID)
}

func (r *PostgresRepository) ListDueRequirements(ctx context.Context, before time.Time) ([]*domain.Requirement, error) {
	return r.list(ctx, `SELECT `+columns+` FROM requirements
		WHERE deleted_at IS NULL AND deadline IS NOT NULL AND deadline <= $1 ORDER BY created_at, id`, before)
}

func (r *PostgresRepository) get(ctx context.Context, query string, id string) (*domain.Requirement, error) {
	req, err := scanRequirement(db.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Requirement, error) {
	rows, err := db.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Requirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequirement(s scanner) (*domain.Requirement, error) {
	var (
		req                         domain.Requirement
		risk                        string
		deadline, warned, deletedAt sql.NullTime
	)
	if err := s.Scan(&req.ID, &req.AuditID, &req.DocumentType, &req.Description, &req.Mandatory, &deadline,
		&req.ComplianceFramework, &req.PriorityScore, &risk, &req.AutoEscalate, &req.EscalationLevel, &warned,
		&req.CreatedBy, &req.CreatedAt, &req.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	req.RiskLevel = domain.RiskLevel(risk)
	req.Deadline = nullTime(deadline)
	req.WarnedDeadline = nullTime(warned)
	req.DeletedAt = nullTime(deletedAt)
	return &req, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
