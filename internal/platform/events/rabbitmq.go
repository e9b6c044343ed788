package events

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes order events to a topic exchange using the event type as routing key.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

var _ services.OrderEventPublisher = (*RabbitMQPublisher)(nil)

// DialRabbitMQ connects to url and declares a durable topic exchange.
func DialRabbitMQ(url, exchange string) (*RabbitMQPublisher, error) {
	if exchange == "" {
		return nil, errors.New("rabbitmq event publisher: exchange is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq declare exchange %s: %w", exchange, err)
	}
	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RabbitMQPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	data, err := envelope.marshal()
	if err != nil {
		return err
	}
	headers := amqp.Table{}
	for key, value := range envelope.Attributes() {
		headers[key] = value
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, envelope.Type, false, false, amqp.Publishing{
		MessageId:    envelope.ID,
		Type:         envelope.Type,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    envelope.OccurredAt,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", envelope.Type, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
