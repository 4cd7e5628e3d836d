// Package ledger is the append-only, hash-chained record of every workflow event. One chain is
// kept per audit; appends to a chain are strictly serialized and chains are independent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/ledger/repository"
	"auditflow/backend/internal/platform/keylock"
)

// ErrIntegrity is returned when an audit chain is broken or halted. It is fatal for further
// appends to that audit until an administrator resumes the chain.
var ErrIntegrity = errors.New("ledger integrity failure")

// ErrInvalidEntry is returned when an entry misses its audit, actor or action.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// Observer is notified of committed blocks. Implementations must not block.
type Observer interface {
	BlockAppended(ctx context.Context, b *domain.Block)
}

// Ledger appends and verifies audit chains.
type Ledger struct {
	repo      repository.Repository
	tx        db.TxRunner
	locks     *keylock.Locks
	now       func() time.Time
	observers []Observer

	appendLatency metric.Float64Histogram
	failures      metric.Int64Counter
}

// New returns a Ledger persisting to repo. tx is joined when the caller already runs one.
func New(repo repository.Repository, tx db.TxRunner) *Ledger {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	meter := otel.Meter("auditflow/ledger")
	latency, _ := meter.Float64Histogram("ledger.append.duration",
		metric.WithUnit("ms"), metric.WithDescription("Time to append one ledger block"))
	failures, _ := meter.Int64Counter("ledger.integrity.failures",
		metric.WithDescription("Integrity failures that halted an audit chain"))
	return &Ledger{
		repo:          repo,
		tx:            tx,
		locks:         keylock.New(),
		now:           time.Now,
		appendLatency: latency,
		failures:      failures,
	}
}

// AddObserver registers o for blocks passed to Announce.
func (l *Ledger) AddObserver(o Observer) {
	if o != nil {
		l.observers = append(l.observers, o)
	}
}

// Append writes one block for e. It joins the transaction carried by ctx so the block commits
// together with the caller's state change. Observers are not notified; call Announce after commit.
func (l *Ledger) Append(ctx context.Context, e domain.Entry) (*domain.Block, error) {
	if e.AuditID == "" || e.Action == "" || e.EntityID == "" {
		return nil, fmt.Errorf("%w: audit, action and entity are required", ErrInvalidEntry)
	}
	if err := e.Actor.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	payload, err := CanonicalPayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEntry, err)
	}

	start := time.Now()
	unlock, err := l.locks.Lock(ctx, e.AuditID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if reason, halted, err := l.repo.HaltReason(ctx, e.AuditID); err != nil {
		return nil, err
	} else if halted {
		return nil, fmt.Errorf("%w: appends halted for audit %s: %s", ErrIntegrity, e.AuditID, reason)
	}

	var block *domain.Block
	var broken string
	err = l.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := l.repo.LockChain(ctx, e.AuditID); err != nil {
			return err
		}
		last, err := l.repo.Last(ctx, e.AuditID)
		if err != nil {
			return err
		}
		prevHash, number := domain.GenesisHash, int64(1)
		if last != nil {
			recomputed, err := ComputeHash(last.PrevHash, last)
			if err != nil {
				return err
			}
			if recomputed != last.Hash {
				broken = fmt.Sprintf("head block %d hash does not match its contents", last.Number)
				return ErrIntegrity
			}
			if broken, err = l.checkHeadLink(ctx, last); err != nil || broken != "" {
				if err == nil {
					err = ErrIntegrity
				}
				return err
			}
			prevHash, number = last.Hash, last.Number+1
		}

		b := &domain.Block{
			AuditID:    e.AuditID,
			Number:     number,
			PrevHash:   prevHash,
			Actor:      e.Actor.ID,
			ActorType:  e.Actor.Type,
			Action:     e.Action,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			Payload:    payload,
			CreatedAt:  l.now().UTC().Truncate(time.Microsecond),
		}
		if b.Hash, err = ComputeHash(prevHash, b); err != nil {
			return err
		}
		if err := l.repo.Insert(ctx, b); err != nil {
			if errors.Is(err, repository.ErrDuplicateBlock) {
				broken = fmt.Sprintf("block %d written out of order", number)
				return ErrIntegrity
			}
			return err
		}
		block = b
		return nil
	})
	if errors.Is(err, ErrIntegrity) && broken != "" {
		l.halt(ctx, e.AuditID, broken)
		return nil, fmt.Errorf("%w: audit %s: %s", ErrIntegrity, e.AuditID, broken)
	}
	if err != nil {
		return nil, err
	}
	l.appendLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
		metric.WithAttributes(attribute.String("action", e.Action)))
	return block, nil
}

// Announce passes committed blocks to every observer.
func (l *Ledger) Announce(ctx context.Context, blocks ...*domain.Block) {
	for _, b := range blocks {
		if b == nil {
			continue
		}
		for _, o := range l.observers {
			o.BlockAppended(ctx, b)
		}
	}
}

// checkHeadLink verifies the block before the head and the head's link to it. Deeper
// divergence is found by VerifyChain, which halts the audit.
func (l *Ledger) checkHeadLink(ctx context.Context, head *domain.Block) (string, error) {
	if head.Number <= 1 {
		if head.PrevHash != domain.GenesisHash {
			return "head block does not link to genesis", nil
		}
		return "", nil
	}
	prior, err := l.repo.List(ctx, head.AuditID, domain.Query{AfterBlock: head.Number - 2, Limit: 1})
	if err != nil {
		return "", err
	}
	if len(prior) == 0 || prior[0].Number != head.Number-1 {
		return fmt.Sprintf("block %d is missing", head.Number-1), nil
	}
	recomputed, err := ComputeHash(prior[0].PrevHash, prior[0])
	if err != nil {
		return "", err
	}
	if recomputed != prior[0].Hash {
		return fmt.Sprintf("block %d hash does not match its contents", prior[0].Number), nil
	}
	if head.PrevHash != prior[0].Hash {
		return fmt.Sprintf("head block %d does not link to block %d", head.Number, prior[0].Number), nil
	}
	return "", nil
}

// halt records the failure outside the caller's transaction so it survives the rollback.
func (l *Ledger) halt(ctx context.Context, auditID, reason string) {
	log.Printf("ledger: INTEGRITY FAILURE audit=%s: %s; appends halted", auditID, reason)
	l.failures.Add(ctx, 1)
	if err := l.repo.Halt(db.WithoutTx(context.WithoutCancel(ctx)), auditID, reason, l.now().UTC()); err != nil {
		log.Printf("ledger: record halt for audit %s: %v", auditID, err)
	}
}

// VerifyChain recomputes the audit chain from one snapshot and reports the first block whose
// numbering, previous-hash link or content hash does not verify. A divergent chain halts
// further appends to the audit.
func (l *Ledger) VerifyChain(ctx context.Context, auditID string) (*domain.Verification, error) {
	blocks, err := l.repo.List(db.WithoutTx(ctx), auditID, domain.Query{})
	if err != nil {
		return nil, err
	}
	v := &domain.Verification{AuditID: auditID, Valid: true, Length: int64(len(blocks)), HeadHash: domain.GenesisHash}
	prev := domain.GenesisHash
	for i, b := range blocks {
		reason := ""
		switch recomputed, err := ComputeHash(b.PrevHash, b); {
		case b.Number != int64(i+1):
			reason = fmt.Sprintf("expected block number %d, found %d", i+1, b.Number)
		case b.PrevHash != prev:
			reason = "previous hash does not match the prior block"
		case err != nil:
			reason = "block contents cannot be canonicalized: " + err.Error()
		case recomputed != b.Hash:
			reason = "hash does not match block contents"
		}
		if reason != "" {
			n := int64(i + 1)
			v.Valid = false
			v.DivergentBlock = &n
			v.Reason = reason
			break
		}
		prev = b.Hash
	}
	if len(blocks) > 0 {
		v.HeadHash = blocks[len(blocks)-1].Hash
	}
	if !v.Valid {
		_, halted, err := l.repo.HaltReason(db.WithoutTx(ctx), auditID)
		if err != nil {
			return nil, err
		}
		if !halted {
			l.halt(ctx, auditID, fmt.Sprintf("block %d: %s", *v.DivergentBlock, v.Reason))
		}
	}
	return v, nil
}

// Resume lifts a halt once the chain verifies end to end.
func (l *Ledger) Resume(ctx context.Context, auditID string) (*domain.Verification, error) {
	v, err := l.VerifyChain(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return v, fmt.Errorf("%w: audit %s still diverges at block %d: %s", ErrIntegrity, auditID, *v.DivergentBlock, v.Reason)
	}
	if err := l.repo.ClearHalt(ctx, auditID); err != nil {
		return nil, err
	}
	log.Printf("ledger: audit %s resumed at block %d", auditID, v.Length)
	return v, nil
}

// Halted reports whether appends to auditID are halted and why.
func (l *Ledger) Halted(ctx context.Context, auditID string) (string, bool, error) {
	return l.repo.HaltReason(ctx, auditID)
}

// Blocks returns the audit chain in ascending order.
func (l *Ledger) Blocks(ctx context.Context, auditID string, q domain.Query) ([]*domain.Block, error) {
	return l.repo.List(ctx, auditID, q)
}

// EntityHistory returns every block recorded for one entity.
func (l *Ledger) EntityHistory(ctx context.Context, entityID string) ([]*domain.Block, error) {
	return l.repo.ListByEntity(ctx, entityID)
}
