package repository

import (
	"context"

	"auditflow/backend/internal/validation/domain"
)

// Repository persists validation jobs.
type Repository interface {
	CreateJob(ctx context.Context, j *domain.Job) error
	// GetJob returns the job with the given seq, or nil if there is none.
	GetJob(ctx context.Context, submissionID string, seq int64) (*domain.Job, error)
	// LatestJob returns the highest-seq job of a submission, or nil.
	LatestJob(ctx context.Context, submissionID string) (*domain.Job, error)
	UpdateJob(ctx context.Context, j *domain.Job) error
	// SupersedeOlder marks every unfinished job of the submission below seq as superseded.
	SupersedeOlder(ctx context.Context, submissionID string, seq int64) error
}
