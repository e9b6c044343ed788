package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

// PubSubPublisher publishes order events to a Pub/Sub topic with per-order ordering keys.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

var _ services.OrderEventPublisher = (*PubSubPublisher)(nil)

// NewPubSubPublisher constructs a publisher on topic and enables message ordering on it.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}, nil
}

func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	data, err := envelope.marshal()
	if err != nil {
		return err
	}
	key := envelope.PartitionKey()
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  envelope.Attributes(),
		OrderingKey: key,
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed publish pauses the ordering key until resumed.
		p.topic.ResumePublish(key)
		return fmt.Errorf("publish %s event: %w", envelope.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}
