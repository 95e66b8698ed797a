package rabbit

import (
	"context"
	"time"

	"github.com/maclarenscott/ticket-nova/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

const Exchange = "ticketnova.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// Publish retries transient broker failures a few times with backoff.
// Callers treat a final failure as deferred work, never as a reservation
// failure.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			observability.NotifyPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}
		err = p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
		if err == nil {
			return nil
		}
	}
	return err
}
