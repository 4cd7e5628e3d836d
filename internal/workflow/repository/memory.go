package repository

import (
	"context"
	"sync"

	"auditflow/backend/internal/workflow/domain"
)

// MemoryRequestRepository keeps idempotency records in process memory.
type MemoryRequestRepository struct {
	mu    sync.RWMutex
	byKey map[requestKey]domain.Request
}

type requestKey struct{ entityID, requestID string }

// NewMemoryRequestRepository returns an empty in-memory idempotency store.
func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{byKey: make(map[requestKey]domain.Request)}
}

func (r *MemoryRequestRepository) GetRequest(ctx context.Context, entityID, requestID string) (*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byKey[requestKey{entityID, requestID}]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

// SaveRequest keeps the first record stored under an entity and request id.
func (r *MemoryRequestRepository) SaveRequest(ctx context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := requestKey{req.EntityID, req.RequestID}
	if _, ok := r.byKey[key]; !ok {
		r.byKey[key] = *req
	}
	return nil
}
