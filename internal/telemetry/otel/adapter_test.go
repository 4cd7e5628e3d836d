package otel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"auditflow/backend/internal/telemetry"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), &telemetry.Event{AuditID: "audit-1"}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewEventEmitter(provider).Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func attributes(rec otellog.Record) map[string]otellog.Value {
	attrs := make(map[string]otellog.Value)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	return attrs
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	event := &telemetry.Event{
		AuditID:     "audit-1",
		BlockNumber: 12,
		BlockHash:   "abc",
		Category:    "submission",
		Action:      "submission.approved",
		Actor:       "auditor-1",
		ActorType:   "user",
		EntityKind:  "submission",
		EntityID:    "sub-1",
		Payload:     json.RawMessage(`{"to":"approved"}`),
		CreatedAt:   created,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec
	if got := rec.Body().AsString(); got != `{"to":"approved"}` {
		t.Errorf("body = %q", got)
	}
	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want INFO", rec.Severity())
	}
	attrs := attributes(rec)
	want := map[string]string{
		"audit_id": "audit-1", "action": "submission.approved", "block_hash": "abc", "category": "submission",
		"actor": "auditor-1", "actor_type": "user", "entity_kind": "submission", "entity_id": "sub-1",
	}
	for k, v := range want {
		if attrs[k].AsString() != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k].AsString(), v)
		}
	}
	if attrs["block_number"].AsInt64() != 12 {
		t.Errorf("block_number = %d, want 12", attrs["block_number"].AsInt64())
	}
}

func TestEmit_EscalationIsWarn(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	if err := em.Emit(context.Background(), &telemetry.Event{AuditID: "a", Category: "escalation", Action: "finding.escalated"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if cap.rec.Severity() != otellog.SeverityWarn || cap.rec.SeverityText() != "WARN" {
		t.Errorf("severity = %v %q", cap.rec.Severity(), cap.rec.SeverityText())
	}
}

func TestEmit_EmptyFieldsAndZeroTime(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &telemetry.Event{AuditID: "a", Action: "requirement.created"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	after := time.Now().UTC()
	rec := cap.rec
	if !rec.Body().Empty() {
		t.Error("body should be empty without payload")
	}
	if ts := rec.Timestamp(); ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp = %v, should be between %v and %v", ts, before, after)
	}
	attrs := attributes(rec)
	for _, k := range []string{"actor", "entity_id", "category"} {
		if _, ok := attrs[k]; ok {
			t.Errorf("empty %s should not be set", k)
		}
	}
}
