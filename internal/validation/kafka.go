package validation

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"auditflow/backend/internal/validation/domain"
	"auditflow/backend/internal/workflow"
)

// KafkaDispatcher publishes jobs to a topic read by an external validator fleet.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

// NewKafkaDispatcher returns nil when brokers or topic are empty.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaDispatcher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Dispatch writes the job keyed by submission so jobs of one submission stay ordered.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(req.SubmissionID), Value: payload})
}

func (d *KafkaDispatcher) Close() error {
	if d == nil || d.writer == nil {
		return nil
	}
	return d.writer.Close()
}

// ResultConsumer reads validator results from Kafka and ingests them.
type ResultConsumer struct {
	reader *kafka.Reader
	sink   ResultSink
}

// NewResultConsumer returns nil when brokers or topic are empty.
func NewResultConsumer(brokers []string, topic, groupID string, sink ResultSink) *ResultConsumer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &ResultConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		sink: sink,
	}
}

// Run consumes until ctx is done. Messages that fail for a transient reason are not committed
// and will be redelivered; malformed ones are committed and logged.
func (c *ResultConsumer) Run(ctx context.Context) error {
	log.Printf("validation: consuming results from %s (group %s)", c.reader.Config().Topic, c.reader.Config().GroupID)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("validation: fetch result: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if err := c.handle(ctx, m.Value); err != nil {
			log.Printf("validation: result at offset %d not processed: %v", m.Offset, err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("validation: commit offset %d: %v", m.Offset, err)
		}
	}
}

func (c *ResultConsumer) handle(ctx context.Context, value []byte) error {
	var r domain.Result
	if err := json.Unmarshal(value, &r); err != nil {
		log.Printf("validation: malformed result skipped: %v", err)
		return nil
	}
	handleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.sink.Ingest(handleCtx, r); err != nil {
		if errors.Is(err, domain.ErrInvalidResult) || errors.Is(err, workflow.ErrNotFound) {
			log.Printf("validation: result skipped: %v", err)
			return nil
		}
		return err
	}
	return nil
}

func (c *ResultConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
