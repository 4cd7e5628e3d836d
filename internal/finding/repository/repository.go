package repository

import (
	"context"
	"time"

	"auditflow/backend/internal/finding/domain"
)

// Repository defines persistence for findings. Findings are never deleted; closed is the archive state.
type Repository interface {
	// GetFindingByID returns the finding for id, or nil if not found.
	GetFindingByID(ctx context.Context, id string) (*domain.Finding, error)
	// GetFindingForUpdate is GetFindingByID that also row-locks inside a transaction.
	GetFindingForUpdate(ctx context.Context, id string) (*domain.Finding, error)
	CreateFinding(ctx context.Context, f *domain.Finding) error
	UpdateFinding(ctx context.Context, f *domain.Finding) error
	ListFindingsByAudit(ctx context.Context, auditID string) ([]*domain.Finding, error)
	ListFindingsBySubmission(ctx context.Context, submissionID string) ([]*domain.Finding, error)
	// ListOverdueFindings returns open or in-progress findings due at or before before.
	ListOverdueFindings(ctx context.Context, before time.Time) ([]*domain.Finding, error)
}
