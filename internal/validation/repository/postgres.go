package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/validation/domain"
)

const columns = `id, submission_id, seq, status, attempts, score, confidence, compliance_score, issues,
	recommendations, processing_ms, error, requested_by, requested_at, completed_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a job repository backed by the validation_jobs table.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) CreateJob(ctx context.Context, j *domain.Job) error {
	issues, recs, err := encodeLists(j)
	if err != nil {
		return err
	}
	_, err = db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO validation_jobs (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		j.ID, j.SubmissionID, j.Seq, string(j.Status), j.Attempts, j.Score, j.Confidence, j.ComplianceScore, issues,
		recs, j.ProcessingMS, j.Error, j.RequestedBy, j.RequestedAt, j.CompletedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateJob
	}
	return err
}

func (r *PostgresRepository) GetJob(ctx context.Context, submissionID string, seq int64) (*domain.Job, error) {
	return r.get(ctx, `SELECT `+columns+` FROM validation_jobs WHERE submission_id = $1 AND seq = $2`, submissionID, seq)
}

func (r *PostgresRepository) LatestJob(ctx context.Context, submissionID string) (*domain.Job, error) {
	return r.get(ctx, `SELECT `+columns+` FROM validation_jobs WHERE submission_id = $1 ORDER BY seq DESC LIMIT 1`, submissionID)
}

func (r *PostgresRepository) UpdateJob(ctx context.Context, j *domain.Job) error {
	issues, recs, err := encodeLists(j)
	if err != nil {
		return err
	}
	_, err = db.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE validation_jobs SET status = $3, attempts = $4, score = $5, confidence = $6, compliance_score = $7,
			issues = $8, recommendations = $9, processing_ms = $10, error = $11, completed_at = $12
		WHERE submission_id = $1 AND seq = $2`,
		j.SubmissionID, j.Seq, string(j.Status), j.Attempts, j.Score, j.Confidence, j.ComplianceScore, issues, recs,
		j.ProcessingMS, j.Error, j.CompletedAt)
	return err
}

func (r *PostgresRepository) SupersedeOlder(ctx context.Context, submissionID string, seq int64) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE validation_jobs SET status = $3 WHERE submission_id = $1 AND seq < $2 AND status IN ($4, $5)`,
		submissionID, seq, string(domain.JobSuperseded), string(domain.JobQueued), string(domain.JobRunning))
	return err
}

func (r *PostgresRepository) get(ctx context.Context, query string, args ...any) (*domain.Job, error) {
	var (
		j                             domain.Job
		status                        string
		score, confidence, compliance sql.NullFloat64
		issues, recs                  []byte
		completedAt                   sql.NullTime
	)
	err := db.Executor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&j.ID, &j.SubmissionID, &j.Seq, &status,
		&j.Attempts, &score, &confidence, &compliance, &issues, &recs, &j.ProcessingMS, &j.Error, &j.RequestedBy,
		&j.RequestedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	j.Status = domain.JobStatus(status)
	j.Score = nullFloat(score)
	j.Confidence = nullFloat(confidence)
	j.ComplianceScore = nullFloat(compliance)
	if err := json.Unmarshal(issues, &j.Issues); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recs, &j.Recommendations); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func encodeLists(j *domain.Job) ([]byte, []byte, error) {
	issues, err := json.Marshal(nonNil(j.Issues))
	if err != nil {
		return nil, nil, err
	}
	recs, err := json.Marshal(nonNil(j.Recommendations))
	if err != nil {
		return nil, nil, err
	}
	return issues, recs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
