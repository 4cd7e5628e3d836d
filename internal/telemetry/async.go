package telemetry

import (
	"context"
	"log"
	"time"

	ledgerdomain "auditflow/backend/internal/ledger/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() so cancellation of the caller does not abort the emit.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit %s #%d failed: %v", event.AuditID, event.BlockNumber, err)
		}
	}()
}

// Observer is a ledger observer that emits every committed block to each emitter.
type Observer struct {
	emitters []EventEmitter
}

// NewObserver returns an observer for the non-nil emitters.
func NewObserver(emitters ...EventEmitter) *Observer {
	o := &Observer{}
	for _, e := range emitters {
		if e != nil {
			o.emitters = append(o.emitters, e)
		}
	}
	return o
}

func (o *Observer) BlockAppended(ctx context.Context, b *ledgerdomain.Block) {
	event := EventFromBlock(b)
	for _, e := range o.emitters {
		EmitAsync(e, ctx, event)
	}
}
