package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

const EventsExchange = "showtime.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// Publish sends msg to the events exchange with the event type as routing key.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	return p.ch.PublishWithContext(ctx, EventsExchange, key, false, false, msg)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
