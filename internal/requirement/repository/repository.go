package repository

import (
	"context"
	"time"

	"auditflow/backend/internal/requirement/domain"
)

// Repository defines persistence for requirements. Requirements are soft-deleted, never removed.
type Repository interface {
	// GetRequirementByID returns the requirement (deleted or not), or nil if not found.
	GetRequirementByID(ctx context.Context, id string) (*domain.Requirement, error)
	// GetRequirementForUpdate is GetRequirementByID that also row-locks inside a transaction.
	GetRequirementForUpdate(ctx context.Context, id string) (*domain.Requirement, error)
	CreateRequirement(ctx context.Context, r *domain.Requirement) error
	UpdateRequirement(ctx context.Context, r *domain.Requirement) error
	// ListRequirementsByAudit returns live requirements of the audit ordered by creation.
	ListRequirementsByAudit(ctx context.Context, auditID string) ([]*domain.Requirement, error)
	// ListDueRequirements returns live requirements whose deadline is at or before before.
	ListDueRequirements(ctx context.Context, before time.Time) ([]*domain.Requirement, error)
}
