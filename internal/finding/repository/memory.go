package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"auditflow/backend/internal/finding/domain"
)

// MemoryRepository keeps findings in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Finding
}

// NewMemoryRepository returns an empty in-memory finding store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Finding)}
}

func (r *MemoryRepository) GetFindingByID(ctx context.Context, id string) (*domain.Finding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetFindingForUpdate(ctx context.Context, id string) (*domain.Finding, error) {
	return r.GetFindingByID(ctx, id)
}

func (r *MemoryRepository) CreateFinding(ctx context.Context, f *domain.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[f.ID] = f.Clone()
	return nil
}

func (r *MemoryRepository) UpdateFinding(ctx context.Context, f *domain.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[f.ID]; ok {
		r.byID[f.ID] = f.Clone()
	}
	return nil
}

func (r *MemoryRepository) ListFindingsByAudit(ctx context.Context, auditID string) ([]*domain.Finding, error) {
	return r.list(func(f *domain.Finding) bool { return f.AuditID == auditID }), nil
}

func (r *MemoryRepository) ListFindingsBySubmission(ctx context.Context, submissionID string) ([]*domain.Finding, error) {
	return r.list(func(f *domain.Finding) bool { return f.SubmissionID == submissionID }), nil
}

func (r *MemoryRepository) ListOverdueFindings(ctx context.Context, before time.Time) ([]*domain.Finding, error) {
	return r.list(func(f *domain.Finding) bool {
		return f.Status.Active() && f.DueDate != nil && !f.DueDate.After(before)
	}), nil
}

func (r *MemoryRepository) list(match func(*domain.Finding) bool) []*domain.Finding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Finding
	for _, f := range r.byID {
		if match(f) {
			out = append(out, f.Clone())
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
