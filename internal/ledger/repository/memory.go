package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"auditflow/backend/internal/ledger/domain"
)

// MemoryRepository keeps chains in process memory. Callers get copies, never shared blocks.
type MemoryRepository struct {
	mu     sync.RWMutex
	chains map[string][]*domain.Block
	halts  map[string]string
}

// NewMemoryRepository returns an empty in-memory ledger store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		chains: make(map[string][]*domain.Block),
		halts:  make(map[string]string),
	}
}

// LockChain is a no-op; the ledger's own per-audit lock serializes in-process appenders.
func (r *MemoryRepository) LockChain(ctx context.Context, auditID string) error { return nil }

// Last returns the head block of the audit chain, or nil.
func (r *MemoryRepository) Last(ctx context.Context, auditID string) (*domain.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.chains[auditID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1].Clone(), nil
}

// Insert appends b. The block number must be exactly one past the current head.
func (r *MemoryRepository) Insert(ctx context.Context, b *domain.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[b.AuditID]
	if b.Number != int64(len(chain))+1 {
		return ErrDuplicateBlock
	}
	r.chains[b.AuditID] = append(chain, b.Clone())
	return nil
}

// List returns a snapshot of the audit chain.
func (r *MemoryRepository) List(ctx context.Context, auditID string, q domain.Query) ([]*domain.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Block
	for _, b := range r.chains[auditID] {
		if b.Number <= q.AfterBlock {
			continue
		}
		out = append(out, b.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// ListByEntity returns every block touching entityID, across audits, in append order.
func (r *MemoryRepository) ListByEntity(ctx context.Context, entityID string) ([]*domain.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Block
	for _, chain := range r.chains {
		for _, b := range chain {
			if b.EntityID == entityID {
				out = append(out, b.Clone())
			}
		}
	}
	sortBlocks(out)
	return out, nil
}

// HaltReason reports whether appends are halted for auditID.
func (r *MemoryRepository) HaltReason(ctx context.Context, auditID string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reason, ok := r.halts[auditID]
	return reason, ok, nil
}

// Halt records that appends for auditID must stop.
func (r *MemoryRepository) Halt(ctx context.Context, auditID, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.halts[auditID]; !ok {
		r.halts[auditID] = reason
	}
	return nil
}

// ClearHalt lifts a halt.
func (r *MemoryRepository) ClearHalt(ctx context.Context, auditID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.halts, auditID)
	return nil
}

func sortBlocks(bs []*domain.Block) {
	sort.Slice(bs, func(i, j int) bool { return less(bs[i], bs[j]) })
}

func less(a, b *domain.Block) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.AuditID != b.AuditID {
		return a.AuditID < b.AuditID
	}
	return a.Number < b.Number
}
