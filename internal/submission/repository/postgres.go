package repository

import (
	"context"
	"database/sql"
	"errors"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/submission/domain"
)

const columns = `id, requirement_id, audit_id, document_ref, submitter_id, revision_round, stage, ai_score,
	ai_confidence, compliance_score, quality_score, reason, verification_notes, ai_job_seq, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a submission repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetSubmissionByID returns the submission for id, or nil if not found.
func (r *PostgresRepository) GetSubmissionByID(ctx context.Context, id string) (*domain.Submission, error) {
	return r.get(ctx, `SELECT `+columns+` FROM submissions WHERE id = $1`, id)
}

// GetSubmissionForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetSubmissionForUpdate(ctx context.Context, id string) (*domain.Submission, error) {
	return r.get(ctx, `SELECT `+columns+` FROM submissions WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) CreateSubmission(ctx context.Context, s *domain.Submission) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO submissions (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.RequirementID, s.AuditID, s.DocumentRef, s.SubmitterID, s.RevisionRound, string(s.Stage), s.AIScore,
		s.AIConfidence, s.ComplianceScore, s.QualityScore, s.Reason, s.VerificationNotes, s.AIJobSeq, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *PostgresRepository) UpdateSubmission(ctx context.Context, s *domain.Submission) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE submissions SET stage = $2, ai_score = $3, ai_confidence = $4, compliance_score = $5,
			quality_score = $6, reason = $7, verification_notes = $8, ai_job_seq = $9, updated_at = $10
		WHERE id = $1`,
		s.ID, string(s.Stage), s.AIScore, s.AIConfidence, s.ComplianceScore, s.QualityScore, s.Reason,
		s.VerificationNotes, s.AIJobSeq, s.UpdatedAt)
	return err
}

func (r *PostgresRepository) ListSubmissionsByRequirement(ctx context.Context, requirementID string) ([]*domain.Submission, error) {
	return r.list(ctx, `SELECT `+columns+` FROM submissions WHERE requirement_id = $1 ORDER BY revision_round`, requirementID)
}

func (r *PostgresRepository) ListSubmissionsByAudit(ctx context.Context, auditID string) ([]*domain.Submission, error) {
	return r.list(ctx, `SELECT `+columns+` FROM submissions WHERE audit_id = $1 ORDER BY created_at, id`, auditID)
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*domain.Submission, error) {
	s, err := scanSubmission(db.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Submission, error) {
	rows, err := db.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(sc scanner) (*domain.Submission, error) {
	var (
		s                                    domain.Submission
		stage                                string
		aiScore, aiConf, compliance, quality sql.NullFloat64
	)
	if err := sc.Scan(&s.ID, &s.RequirementID, &s.AuditID, &s.DocumentRef, &s.SubmitterID, &s.RevisionRound, &stage,
		&aiScore, &aiConf, &compliance, &quality, &s.Reason, &s.VerificationNotes, &s.AIJobSeq, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Stage = domain.Stage(stage)
	s.AIScore = nullFloat(aiScore)
	s.AIConfidence = nullFloat(aiConf)
	s.ComplianceScore = nullFloat(compliance)
	s.QualityScore = nullFloat(quality)
	return &s, nil
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
