package repository

import (
	"context"

	"auditflow/backend/internal/submission/domain"
)

// Repository defines persistence for submissions and their current-stage pointer.
type Repository interface {
	// GetSubmissionByID returns the submission for id, or nil if not found.
	GetSubmissionByID(ctx context.Context, id string) (*domain.Submission, error)
	// GetSubmissionForUpdate is GetSubmissionByID that also row-locks inside a transaction.
	GetSubmissionForUpdate(ctx context.Context, id string) (*domain.Submission, error)
	CreateSubmission(ctx context.Context, s *domain.Submission) error
	UpdateSubmission(ctx context.Context, s *domain.Submission) error
	// ListSubmissionsByRequirement returns every revision of a requirement, oldest round first.
	ListSubmissionsByRequirement(ctx context.Context, requirementID string) ([]*domain.Submission, error)
	ListSubmissionsByAudit(ctx context.Context, auditID string) ([]*domain.Submission, error)
}
