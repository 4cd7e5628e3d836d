package repository

import (
	"context"
	"errors"
	"sync"

	"auditflow/backend/internal/validation/domain"
)

// ErrDuplicateJob is returned when a job with the same submission and seq already exists.
var ErrDuplicateJob = errors.New("validation job already exists")

// MemoryRepository keeps jobs in process memory, keyed by submission.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string][]*domain.Job
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string][]*domain.Job)}
}

func (r *MemoryRepository) CreateJob(ctx context.Context, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs[j.SubmissionID] {
		if existing.Seq == j.Seq {
			return ErrDuplicateJob
		}
	}
	r.jobs[j.SubmissionID] = append(r.jobs[j.SubmissionID], j.Clone())
	return nil
}

func (r *MemoryRepository) GetJob(ctx context.Context, submissionID string, seq int64) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs[submissionID] {
		if j.Seq == seq {
			return j.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) LatestJob(ctx context.Context, submissionID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Job
	for _, j := range r.jobs[submissionID] {
		if latest == nil || j.Seq > latest.Seq {
			latest = j
		}
	}
	return latest.Clone(), nil
}

func (r *MemoryRepository) UpdateJob(ctx context.Context, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.jobs[j.SubmissionID] {
		if existing.Seq == j.Seq {
			r.jobs[j.SubmissionID][i] = j.Clone()
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) SupersedeOlder(ctx context.Context, submissionID string, seq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs[submissionID] {
		if j.Seq < seq && !j.Status.Finished() {
			j.Status = domain.JobSuperseded
		}
	}
	return nil
}
