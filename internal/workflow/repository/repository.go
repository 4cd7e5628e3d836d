package repository

import (
	"context"

	"auditflow/backend/internal/workflow/domain"
)

// RequestRepository stores idempotency records for transitions.
type RequestRepository interface {
	// GetRequest returns the record stored for requestID on entityID, or nil if not found.
	// The same request id may be used on different entities.
	GetRequest(ctx context.Context, entityID, requestID string) (*domain.Request, error)
	SaveRequest(ctx context.Context, r *domain.Request) error
}
