package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Envelope wraps every message written to Kafka
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// KafkaPublisher writes one envelope per submission, keyed by source nonce
type KafkaPublisher struct {
	topic string
	p     sarama.SyncProducer
}

// NewKafkaPublisher connects a synchronous producer to brokers
func NewKafkaPublisher(brokers []string, topic string, cfg *sarama.Config) (*KafkaPublisher, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForAll
		cfg.Producer.Retry.Max = 5
		cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(topic, p), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(topic string, p sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{topic: topic, p: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, rec SubmissionRecord) error {
	// SyncProducer takes no context; skip the send if we are already cancelled
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Envelope{
		Type: RecordType,
		TS:   time.Now().UnixMilli(),
		Data: data,
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(rec.SourceNonce),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := k.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.p != nil {
		return k.p.Close()
	}
	return nil
}
