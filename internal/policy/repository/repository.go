package repository

import (
	"context"

	"auditflow/backend/internal/policy/domain"
)

// Repository defines persistence for audit transition policies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	ListByAudit(ctx context.Context, auditID string) ([]*domain.Policy, error)
	GetEnabledPoliciesByAudit(ctx context.Context, auditID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	// DisableByAudit turns off every policy of the audit so the default policy applies again.
	DisableByAudit(ctx context.Context, auditID string) error
}
