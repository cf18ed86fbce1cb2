// Package outbox relays committed domain events from the outbox table to the
// message broker. Delivery is at least once; consumers dedupe on MessageId.
package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/storage"
)

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Backoff    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Second,
		BatchSize:  100,
		MaxRetries: 3,
		Backoff:    200 * time.Millisecond,
	}
}

type Publisher struct {
	outbox storage.Outbox
	sink   Sink
	clock  clock.Clock
	cfg    Config
	log    observability.Logger
}

func NewPublisher(outbox storage.Outbox, sink Sink, clk clock.Clock, cfg Config, log observability.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &Publisher{outbox: outbox, sink: sink, clock: clk, cfg: cfg, log: log.WithField("component", "outbox_publisher")}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				p.log.WithError(err).Error("outbox relay pass failed")
			}
		}
	}
}

// PublishPending publishes one batch in creation order. It stops at the first
// record that cannot be delivered so later events never overtake it.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	records, err := p.outbox.UnpublishedEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return 0, nil
	}
	observability.OutboxLag.Set(p.clock.Now().Sub(records[0].CreatedAt).Seconds())

	published := 0
	for _, rec := range records {
		if err := p.publish(ctx, rec); err != nil {
			return published, errors.Wrapf(err, "publish %s %s", rec.EventType, rec.ID)
		}
		if err := p.outbox.MarkPublished(ctx, rec.ID, p.clock.Now()); err != nil {
			return published, errors.Wrapf(err, "mark %s published", rec.ID)
		}
		published++
	}
	p.log.WithField("count", published).Debug("outbox events published")
	return published, nil
}

func (p *Publisher) publish(ctx context.Context, rec storage.OutboxRecord) error {
	msg := amqp.Publishing{
		MessageId:   rec.DedupeKey,
		ContentType: "application/json",
		Timestamp:   rec.CreatedAt,
		Type:        rec.EventType,
		Body:        rec.Payload,
		Headers: amqp.Table{
			"aggregate_type": rec.AggregateType,
			"aggregate_id":   rec.AggregateID.String(),
		},
	}
	var err error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.Backoff << (attempt - 1)):
			}
		}
		if err = p.sink.Publish(ctx, rec.EventType, msg); err == nil {
			return nil
		}
	}
	return err
}
