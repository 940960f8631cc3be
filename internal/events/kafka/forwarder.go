// Package kafka forwards domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"admission-portal/internal/common/logger"
	"admission-portal/internal/events"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

const SubscriberName = "kafka"

// Producer is the part of *kgo.Client the subscriber uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Envelope is the record value written to the topic.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Forwarder is an events.Subscriber. Records are keyed by applicant so one
// applicant's events stay ordered within a partition.
type Forwarder struct {
	producer Producer
	topic    string
	logger   logger.Logger
}

func NewForwarder(p Producer, topic string, log logger.Logger) *Forwarder {
	return &Forwarder{
		producer: p,
		topic:    topic,
		logger:   log.WithFields(map[string]interface{}{"subscriber": SubscriberName, "topic": topic}),
	}
}

// NewClient builds a franz-go client for the given brokers.
func NewClient(brokers []string, clientID, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (f *Forwarder) Name() string { return SubscriberName }

func (f *Forwarder) Handle(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Name(), err)
	}
	value, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Name:       e.Name(),
		Key:        e.Key(),
		OccurredAt: e.OccurredAt().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	rec := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-name", Value: []byte(e.Name())},
		},
	}
	if err := f.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", e.Name(), err)
	}
	f.logger.Debug("Event forwarded", map[string]interface{}{"event": e.Name(), "key": e.Key()})
	return nil
}
