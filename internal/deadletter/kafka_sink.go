package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// KafkaSink publishes dead letters as JSON records keyed by voucher id.
type KafkaSink struct {
	Producer sarama.SyncProducer
	Topic    string
}

// NewKafkaSink wraps an existing producer.
func NewKafkaSink(p sarama.SyncProducer, topic string) (*KafkaSink, error) {
	if p == nil {
		return nil, errors.New("kafka dead-letter sink: producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka dead-letter sink: topic is required")
	}
	return &KafkaSink{Producer: p, Topic: topic}, nil
}

// NewSyncProducer dials brokers with settings suited to a low-volume,
// must-not-lose dead-letter topic.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}
	p, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: create sync producer: %w", err)
	}
	return p, nil
}

// ProducerConfig returns the sarama config used by NewSyncProducer.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Write implements Sink.
func (s *KafkaSink) Write(_ context.Context, d *domain.DeadLetter) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("kafka dead-letter sink: encode: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.Topic,
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_type"), Value: []byte(d.FailureType)},
			{Key: []byte("receive_count"), Value: []byte(strconv.Itoa(d.ReceiveCount))},
		},
	}
	if d.VoucherID != "" {
		msg.Key = sarama.StringEncoder(d.VoucherID)
	}
	if _, _, err := s.Producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka dead-letter sink: send: %w", err)
	}
	return nil
}

// Close closes the underlying producer.
func (s *KafkaSink) Close() error { return s.Producer.Close() }

var _ Sink = (*KafkaSink)(nil)
