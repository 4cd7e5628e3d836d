package repository

import (
	"context"
	"sort"
	"sync"

	"auditflow/backend/internal/submission/domain"
)

// MemoryRepository keeps submissions in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Submission
}

// NewMemoryRepository returns an empty in-memory submission store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Submission)}
}

func (r *MemoryRepository) GetSubmissionByID(ctx context.Context, id string) (*domain.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetSubmissionForUpdate(ctx context.Context, id string) (*domain.Submission, error) {
	return r.GetSubmissionByID(ctx, id)
}

func (r *MemoryRepository) CreateSubmission(ctx context.Context, s *domain.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) UpdateSubmission(ctx context.Context, s *domain.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		r.byID[s.ID] = s.Clone()
	}
	return nil
}

func (r *MemoryRepository) ListSubmissionsByRequirement(ctx context.Context, requirementID string) ([]*domain.Submission, error) {
	out := r.list(func(s *domain.Submission) bool { return s.RequirementID == requirementID })
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionRound < out[j].RevisionRound })
	return out, nil
}

func (r *MemoryRepository) ListSubmissionsByAudit(ctx context.Context, auditID string) ([]*domain.Submission, error) {
	out := r.list(func(s *domain.Submission) bool { return s.AuditID == auditID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) list(match func(*domain.Submission) bool) []*domain.Submission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Submission
	for _, s := range r.byID {
		if match(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}
