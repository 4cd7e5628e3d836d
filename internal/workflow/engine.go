// Package workflow is the single mutation path for requirements, submissions and findings.
// Every mutation locks its entity, validates against the central transition tables, appends
// exactly one ledger block and updates the current-state pointer in one unit of work.
package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/db"
	findingrepo "auditflow/backend/internal/finding/repository"
	"auditflow/backend/internal/ledger"
	ledgerdomain "auditflow/backend/internal/ledger/domain"
	"auditflow/backend/internal/platform/keylock"
	"auditflow/backend/internal/policy/engine"
	requirementrepo "auditflow/backend/internal/requirement/repository"
	submissionrepo "auditflow/backend/internal/submission/repository"
	"auditflow/backend/internal/workflow/domain"
	"auditflow/backend/internal/workflow/repository"
)

// Receipt is the tamper-evidence receipt of a mutation: the block that recorded it.
type Receipt struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	BlockNumber int64  `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	// Replayed is set when an idempotent retry returned the original receipt.
	Replayed bool `json:"replayed,omitempty"`
}

// Engine implements every workflow mutation.
type Engine struct {
	requirements requirementrepo.Repository
	submissions  submissionrepo.Repository
	findings     findingrepo.Repository
	requests     repository.RequestRepository
	ledger       *ledger.Ledger
	tx           db.TxRunner
	authz        engine.Authorizer
	locks        *keylock.Locks
	now          func() time.Time

	transitions metric.Int64Counter
}

// NewEngine returns an Engine with the given dependencies. tx may be nil for the in-memory stores.
func NewEngine(
	requirements requirementrepo.Repository,
	submissions submissionrepo.Repository,
	findings findingrepo.Repository,
	requests repository.RequestRepository,
	l *ledger.Ledger,
	tx db.TxRunner,
	authz engine.Authorizer,
) *Engine {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	counter, _ := otel.Meter("auditflow/workflow").Int64Counter("workflow.transitions",
		metric.WithDescription("Workflow mutations by entity, target state and outcome"))
	return &Engine{
		requirements: requirements,
		submissions:  submissions,
		findings:     findings,
		requests:     requests,
		ledger:       l,
		tx:           tx,
		authz:        authz,
		locks:        keylock.New(),
		now:          time.Now,
		transitions:  counter,
	}
}

// Ledger returns the ledger the engine appends to.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// mutate runs fn under the entity lock inside one transaction, then announces the committed
// block. fn returns a nil block when nothing was appended (idempotent replay, no-op).
func (e *Engine) mutate(ctx context.Context, key string, fn func(ctx context.Context) (*ledgerdomain.Block, error)) error {
	unlock, err := e.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	var block *ledgerdomain.Block
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := fn(ctx)
		block = b
		return err
	})
	if err != nil {
		return err
	}
	e.ledger.Announce(ctx, block)
	return nil
}

func (e *Engine) authorize(ctx context.Context, in engine.Input) error {
	if err := in.Actor.Validate(); err != nil {
		return invalidInput("%v", err)
	}
	ok, err := e.authz.Allow(ctx, in)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// replayed looks up requestID on entityID and returns the stored receipt when it matches the
// transition.
func (e *Engine) replayed(ctx context.Context, requestID, entityID, from, to string) (*Receipt, error) {
	if requestID == "" {
		return nil, nil
	}
	rec, err := e.requests.GetRequest(ctx, entityID, requestID)
	if err != nil || rec == nil {
		return nil, err
	}
	if !rec.Matches(entityID, from, to) {
		return nil, ErrIdempotencyKeyReuse
	}
	return &Receipt{EntityID: entityID, State: rec.ToState, BlockNumber: rec.BlockNumber, BlockHash: rec.BlockHash, Replayed: true}, nil
}

func (e *Engine) remember(ctx context.Context, requestID, entityID, from, to string, b *ledgerdomain.Block) error {
	if requestID == "" {
		return nil
	}
	return e.requests.SaveRequest(ctx, &domain.Request{
		RequestID:   requestID,
		EntityID:    entityID,
		FromState:   from,
		ToState:     to,
		AuditID:     b.AuditID,
		BlockNumber: b.Number,
		BlockHash:   b.Hash,
		CreatedAt:   b.CreatedAt,
	})
}

func (e *Engine) record(ctx context.Context, entity, to string, err error) {
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("to", to),
		attribute.String("outcome", outcome(err)),
	))
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err)
}

func receiptFor(entityID, state string, b *ledgerdomain.Block) *Receipt {
	return &Receipt{EntityID: entityID, State: state, BlockNumber: b.Number, BlockHash: b.Hash}
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

func actorPayload(a actor.Actor) string {
	if a.Role == "" {
		return string(a.Type)
	}
	return string(a.Role)
}
