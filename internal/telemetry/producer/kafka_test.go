package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"auditflow/backend/internal/telemetry"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	c.msgs = append(c.msgs, msgs...)
	return c.err
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestNewKafkaProducer_Unconfigured(t *testing.T) {
	if NewKafkaProducer(nil, "topic") != nil {
		t.Error("no brokers should give nil producer")
	}
	if NewKafkaProducer([]string{"localhost:9092"}, "") != nil {
		t.Error("no topic should give nil producer")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &telemetry.Event{}); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestKafkaProducer_KeysByAudit(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaProducer{writer: w, topic: "events"}
	ev := &telemetry.Event{AuditID: "audit-7", BlockNumber: 3, Action: "submission.approved", Category: "submission"}

	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "audit-7" {
		t.Errorf("key = %q, want audit-7", msg.Key)
	}
	var got telemetry.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if got.BlockNumber != 3 || got.Action != "submission.approved" {
		t.Errorf("decoded event = %+v", got)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "submission.approved" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: err %v closed %v", err, w.closed)
	}
}

func TestKafkaProducer_ReturnsWriteError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := &KafkaProducer{writer: w, topic: "events"}
	if err := p.Emit(context.Background(), &telemetry.Event{AuditID: "a"}); err == nil {
		t.Error("Emit should return the writer error")
	}
}

var _ telemetry.EventEmitter = (*KafkaProducer)(nil)
