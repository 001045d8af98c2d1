package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers an encoded envelope. eventType is the event name; key
// groups messages of the same document.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, key string) error
	Close() error
}

// KafkaPublisher writes envelopes to Kafka. The topic is looked up by event
// name and defaults to the name itself.
type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
}

// NewKafkaPublisher creates a publisher writing to brokers.
func NewKafkaPublisher(brokers []string, topicByEvent map[string]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicByEvent: topicByEvent,
	}, nil
}

func (p *KafkaPublisher) topic(eventType string) string {
	if mapped, ok := p.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	return eventType
}

// Publish writes one message.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, key string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic(eventType),
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// LoggingPublisher writes envelopes to a zerolog logger at info level.
type LoggingPublisher struct {
	logger zerolog.Logger
}

// NewLoggingPublisher creates a publisher logging to l.
func NewLoggingPublisher(l zerolog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: l}
}

// Publish logs the envelope.
func (p *LoggingPublisher) Publish(_ context.Context, eventType string, payload []byte, key string) error {
	p.logger.Info().Str("event", eventType).Str("key", key).RawJSON("envelope", payload).Msg("document event")
	return nil
}

// Close is a no-op.
func (p *LoggingPublisher) Close() error { return nil }
