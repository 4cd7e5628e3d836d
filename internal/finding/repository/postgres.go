package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/finding/domain"
)

const columns = `id, audit_id, title, description, severity, status, priority, source, submission_id, meeting_id,
	assignee_id, due_date, escalation_level, created_by, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a finding repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetFindingByID returns the finding for id, or nil if not found.
func (r *PostgresRepository) GetFindingByID(ctx context.Context, id string) (*domain.Finding, error) {
	return r.get(ctx, `SELECT `+columns+` FROM findings WHERE id = $1`, id)
}

// GetFindingForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetFindingForUpdate(ctx context.Context, id string) (*domain.Finding, error) {
	return r.get(ctx, `SELECT `+columns+` FROM findings WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) CreateFinding(ctx context.Context, f *domain.Finding) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO findings (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		f.ID, f.AuditID, f.Title, f.Description, string(f.Severity), string(f.Status), string(f.Priority), string(f.Source),
		nullString(f.SubmissionID), nullString(f.MeetingID), f.AssigneeID, f.DueDate, f.EscalationLevel, f.CreatedBy,
		f.CreatedAt, f.UpdatedAt)
	return err
}

func (r *PostgresRepository) UpdateFinding(ctx context.Context, f *domain.Finding) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE findings SET status = $2, priority = $3, assignee_id = $4, due_date = $5, escalation_level = $6,
			updated_at = $7
		WHERE id = $1`,
		f.ID, string(f.Status), string(f.Priority), f.AssigneeID, f.DueDate, f.EscalationLevel, f.UpdatedAt)
	return err
}

func (r *PostgresRepository) ListFindingsByAudit(ctx context.Context, auditID string) ([]*domain.Finding, error) {
	return r.list(ctx, `SELECT `+columns+` FROM findings WHERE audit_id = $1 ORDER BY created_at, id`, auditID)
}

func (r *PostgresRepository) ListFindingsBySubmission(ctx context.Context, submissionID string) ([]*domain.Finding, error) {
	return r.list(ctx, `SELECT `+columns+` FROM findings WHERE submission_id = $1 ORDER BY created_at, id`, submissionID)
}

func (r *PostgresRepository) ListOverdueFindings(ctx context.Context, before time.Time) ([]*domain.Finding, error) {
	return r.list(ctx, `SELECT `+columns+` FROM findings
		WHERE status IN ('open', 'in_progress') AND due_date IS NOT NULL AND due_date <= $1
		ORDER BY created_at, id`, before)
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*domain.Finding, error) {
	f, err := scanFinding(db.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Finding, error) {
	rows, err := db.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFinding(s scanner) (*domain.Finding, error) {
	var (
		f                                  domain.Finding
		severity, status, priority, source string
		submissionID, meetingID            sql.NullString
		due                                sql.NullTime
	)
	if err := s.Scan(&f.ID, &f.AuditID, &f.Title, &f.Description, &severity, &status, &priority, &source,
		&submissionID, &meetingID, &f.AssigneeID, &due, &f.EscalationLevel, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Severity = domain.Severity(severity)
	f.Status = domain.Status(status)
	f.Priority = domain.Priority(priority)
	f.Source = domain.Source(source)
	f.SubmissionID = submissionID.String
	f.MeetingID = meetingID.String
	if due.Valid {
		d := due.Time.UTC()
		f.DueDate = &d
	}
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
