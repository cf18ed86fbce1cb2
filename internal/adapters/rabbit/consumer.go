package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/payment"
)

const PaymentsQueue = "payments.results"

type Consumer struct {
	ch    *amqp.Channel
	queue string
	log   observability.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, log observability.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err = ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Consumer{ch: ch, queue: queue, log: log.WithField("queue", queue)}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

// Run feeds payment results to h until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, h payment.Handler) error {
	deliveries, err := c.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("payment deliveries channel closed")
			}
			c.handle(ctx, h, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h payment.Handler, d amqp.Delivery) {
	log := c.log.WithField("message_id", d.MessageId)
	err := Dispatch(ctx, h, d.Body)
	switch Settle(err) {
	case Ack:
		if err != nil {
			log.WithError(err).Warn("payment result dropped")
		}
		if aerr := d.Ack(false); aerr != nil {
			log.WithError(aerr).Error("ack failed")
		}
	case Requeue:
		log.WithError(err).Warn("payment result requeued")
		if nerr := d.Nack(false, true); nerr != nil {
			log.WithError(nerr).Error("nack failed")
		}
	case Reject:
		log.WithError(err).Error("payment result rejected")
		if nerr := d.Nack(false, false); nerr != nil {
			log.WithError(nerr).Error("nack failed")
		}
	}
}

// Dispatch decodes one message body and applies it.
func Dispatch(ctx context.Context, h payment.Handler, body []byte) error {
	res, err := payment.Decode(body)
	if err != nil {
		return err
	}
	_, err = h.HandlePayment(ctx, res)
	return err
}

type Outcome int

const (
	Ack Outcome = iota
	Requeue
	Reject
)

// Settle decides what happens to a delivery after handling: malformed
// messages are rejected, storage failures retried, and business rejections
// (unknown booking, invalid transition) acknowledged.
func Settle(err error) Outcome {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, domain.ErrValidation):
		return Reject
	case errors.Is(err, domain.ErrStorage):
		return Requeue
	case domain.Kind(err) != nil:
		return Ack
	}
	return Requeue
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
