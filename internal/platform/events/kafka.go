package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events to a Kafka topic keyed by order id.
type KafkaPublisher struct {
	writer messageWriter
}

var _ services.OrderEventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher constructs a publisher writing to topic on brokers.
func NewKafkaPublisher(topic string, brokers ...string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka event publisher: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	data, err := envelope.marshal()
	if err != nil {
		return err
	}
	attrs := envelope.Attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventId", "eventType", "businessId", "orderId"} {
		if value, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	msg := kafka.Message{
		Key:     []byte(envelope.PartitionKey()),
		Value:   data,
		Headers: headers,
		Time:    envelope.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", envelope.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
