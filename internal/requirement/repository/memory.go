package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"auditflow/backend/internal/requirement/domain"
)

// MemoryRepository keeps requirements in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Requirement
}

// NewMemoryRepository returns an empty in-memory requirement store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Requirement)}
}

func (r *MemoryRepository) GetRequirementByID(ctx context.Context, id string) (*domain.Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

// GetRequirementForUpdate is GetRequirementByID; callers serialize through the engine's entity lock.
func (r *MemoryRepository) GetRequirementForUpdate(ctx context.Context, id string) (*domain.Requirement, error) {
	return r.GetRequirementByID(ctx, id)
}

func (r *MemoryRepository) CreateRequirement(ctx context.Context, req *domain.Requirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[req.ID] = req.Clone()
	return nil
}

func (r *MemoryRepository) UpdateRequirement(ctx context.Context, req *domain.Requirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[req.ID]; !ok {
		return nil
	}
	r.byID[req.ID] = req.Clone()
	return nil
}

func (r *MemoryRepository) ListRequirementsByAudit(ctx context.Context, auditID string) ([]*domain.Requirement, error) {
	return r.list(func(req *domain.Requirement) bool { return req.AuditID == auditID }), nil
}

func (r *MemoryRepository) ListDueRequirements(ctx context.Context, before time.Time) ([]*domain.Requirement, error) {
	return r.list(func(req *domain.Requirement) bool {
		return req.Deadline != nil && !req.Deadline.After(before)
	}), nil
}

func (r *MemoryRepository) list(match func(*domain.Requirement) bool) []*domain.Requirement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Requirement
	for _, req := range r.byID {
		if req.DeletedAt == nil && match(req) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
