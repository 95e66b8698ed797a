// Package outbox drains committed notification records to the broker.
// Records are written in the same transaction as the reservation, so a
// broker outage delays notifications but never loses or invents them.
package outbox

import (
	"context"
	"time"

	"github.com/maclarenscott/ticket-nova/internal/adapters/crdb"
	"github.com/maclarenscott/ticket-nova/internal/adapters/rabbit"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

const batchSize = 10

type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	interval  time.Duration
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, interval: interval}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("outbox publisher started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.WithError(err).Error("outbox drain failed")
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	if age, err := p.repo.OldestUnpublishedAge(ctx, time.Now()); err == nil {
		observability.OutboxLag.Set(age.Seconds())
	}

	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Body:        rec.Payload,
			}
			if err := p.rabbitPub.Publish(gctx, rec.EventType, msg); err != nil {
				p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("publish failed, will retry next tick")
				return nil
			}
			return p.repo.MarkPublished(gctx, rec.ID, time.Now())
		})
	}
	return g.Wait()
}
