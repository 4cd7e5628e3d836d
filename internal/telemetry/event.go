// Package telemetry publishes committed ledger blocks as workflow events to best-effort sinks
// (OTel log records, Kafka). Sinks never affect the outcome of a workflow operation.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	ledgerdomain "auditflow/backend/internal/ledger/domain"
)

// Event is the published form of one ledger block.
type Event struct {
	AuditID     string          `json:"audit_id"`
	BlockNumber int64           `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	PrevHash    string          `json:"prev_hash"`
	Category    string          `json:"category"`
	Action      string          `json:"action"`
	Actor       string          `json:"actor"`
	ActorType   string          `json:"actor_type"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// EventFromBlock returns the event for b, or nil for a nil block.
func EventFromBlock(b *ledgerdomain.Block) *Event {
	if b == nil {
		return nil
	}
	return &Event{
		AuditID:     b.AuditID,
		BlockNumber: b.Number,
		BlockHash:   b.Hash,
		PrevHash:    b.PrevHash,
		Category:    b.Category(),
		Action:      b.Action,
		Actor:       b.Actor,
		ActorType:   string(b.ActorType),
		EntityKind:  string(b.EntityKind),
		EntityID:    b.EntityID,
		Payload:     append(json.RawMessage(nil), b.Payload...),
		CreatedAt:   b.CreatedAt,
	}
}

// EventEmitter emits workflow events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
