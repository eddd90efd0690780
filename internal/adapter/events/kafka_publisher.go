// Package events forwards ledger events to external streams.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"referral-ledger/internal/core/domain"
	"referral-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the JSON value of every message.
type envelope struct {
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"published_at"`
	Data       domain.Event `json:"data"`
}

// KafkaPublisher implements ports.EventPublisher on one topic. Messages are
// keyed by the event's partition key so that one user's events stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, topic), nil
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, now: func() time.Time { return time.Now().UTC() }}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt domain.Event) error {
	now := p.now()
	payload, err := json.Marshal(envelope{Type: evt.EventName(), OccurredAt: now, Data: evt})
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.EventName(), err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.PartitionKey()),
		Value: payload,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventName())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", evt.EventName(), p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LoggingPublisher is the EventPublisher used when no broker is configured.
type LoggingPublisher struct {
	log zerolog.Logger
}

func NewLoggingPublisher(log zerolog.Logger) *LoggingPublisher {
	return &LoggingPublisher{log: log}
}

func (p *LoggingPublisher) Publish(_ context.Context, evt domain.Event) error {
	p.log.Debug().
		Str("event", evt.EventName()).
		Str("key", evt.PartitionKey()).
		Msg("event published")
	return nil
}

func (p *LoggingPublisher) Close() error { return nil }

// Forwarder returns a bus handler that hands every event to pub, bounded by
// timeout.
func Forwarder(pub ports.EventPublisher, timeout time.Duration) ports.EventHandler {
	return func(ctx context.Context, evt domain.Event) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return pub.Publish(ctx, evt)
	}
}
