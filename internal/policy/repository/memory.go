package repository

import (
	"context"
	"sync"

	"auditflow/backend/internal/policy/domain"
)

// MemoryRepository keeps policies in process memory, in creation order.
type MemoryRepository struct {
	mu       sync.RWMutex
	policies []*domain.Policy
}

// NewMemoryRepository returns an empty in-memory policy store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListByAudit(ctx context.Context, auditID string) ([]*domain.Policy, error) {
	return r.list(auditID, false), nil
}

func (r *MemoryRepository) GetEnabledPoliciesByAudit(ctx context.Context, auditID string) ([]*domain.Policy, error) {
	return r.list(auditID, true), nil
}

func (r *MemoryRepository) Create(ctx context.Context, p *domain.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	r.policies = append(r.policies, &c)
	return nil
}

func (r *MemoryRepository) DisableByAudit(ctx context.Context, auditID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.policies {
		if p.AuditID == auditID {
			p.Enabled = false
		}
	}
	return nil
}

func (r *MemoryRepository) list(auditID string, enabledOnly bool) []*domain.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Policy
	for _, p := range r.policies {
		if p.AuditID == auditID && (!enabledOnly || p.Enabled) {
			c := *p
			out = append(out, &c)
		}
	}
	return out
}
