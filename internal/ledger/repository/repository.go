package repository

import (
	"context"
	"errors"
	"time"

	"auditflow/backend/internal/ledger/domain"
)

// ErrDuplicateBlock is returned by Insert when the block number is already taken for the audit.
var ErrDuplicateBlock = errors.New("ledger block number already exists")

// Repository defines append-only persistence for ledger blocks. There is no update or delete.
type Repository interface {
	// LockChain serializes appenders of auditID until the surrounding transaction ends.
	LockChain(ctx context.Context, auditID string) error
	// Last returns the highest-numbered block of the audit, or nil if the chain is empty.
	Last(ctx context.Context, auditID string) (*domain.Block, error)
	Insert(ctx context.Context, b *domain.Block) error
	// List returns blocks of the audit in ascending block order from one consistent snapshot.
	List(ctx context.Context, auditID string, q domain.Query) ([]*domain.Block, error)
	ListByEntity(ctx context.Context, entityID string) ([]*domain.Block, error)
	HaltReason(ctx context.Context, auditID string) (string, bool, error)
	Halt(ctx context.Context, auditID, reason string, at time.Time) error
	ClearHalt(ctx context.Context, auditID string) error
}
