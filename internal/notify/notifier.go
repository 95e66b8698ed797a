// Package notify consumes committed ticket events and sends the customer
// their ticket. It runs entirely outside the reservation transaction; a
// failure here is logged and requeued, never reflected back into the
// reservation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maclarenscott/ticket-nova/internal/adapters/crdb"
	"github.com/maclarenscott/ticket-nova/internal/artifact"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

type deliveries interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Notifier struct {
	consumer deliveries
	qr       *artifact.Generator
	sender   EmailSender
	logger   observability.Logger
}

func NewNotifier(consumer deliveries, qr *artifact.Generator, sender EmailSender, logger observability.Logger) *Notifier {
	return &Notifier{consumer: consumer, qr: qr, sender: sender, logger: logger}
}

// Run consumes until the context is cancelled. A delivery that fails once
// is requeued; a redelivered failure is dropped to the log so a poison
// message cannot wedge the queue.
func (n *Notifier) Run(ctx context.Context) error {
	msgs, err := n.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	n.logger.Info("notifier started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := n.handle(ctx, d); err != nil {
				n.logger.WithError(err).WithField("routing_key", d.RoutingKey).Warn("notification failed")
				d.Nack(false, !d.Redelivered)
				continue
			}
			d.Ack(false)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, d amqp.Delivery) error {
	switch d.RoutingKey {
	case "ticket.issued":
		return n.sendTicket(ctx, d.Body)
	case "ticket.released":
		return n.sendRelease(ctx, d.Body)
	default:
		// order.* events carry nothing a customer needs directly
		return nil
	}
}

func (n *Notifier) sendTicket(ctx context.Context, body []byte) error {
	var ev crdb.TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}
	if ev.CustomerEmail == "" {
		n.logger.WithField("ticket_number", ev.TicketNumber).Warn("ticket event without customer email")
		return nil
	}

	png, err := n.qr.TicketQR(ev.Ticket())
	if err != nil {
		return err
	}

	return n.sender.Send(ctx, Message{
		To:      ev.CustomerEmail,
		Subject: fmt.Sprintf("Your ticket %s", ev.TicketNumber),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour seat %s (%s) is confirmed. Ticket number: %s.\nPresent the attached QR code at the door.\n",
			ev.CustomerName, ev.Seat, ev.Category, ev.TicketNumber,
		),
		Attachment:     png,
		AttachmentName: ev.TicketNumber + ".png",
	})
}

func (n *Notifier) sendRelease(ctx context.Context, body []byte) error {
	var ev crdb.TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}
	if ev.CustomerEmail == "" {
		return nil
	}
	return n.sender.Send(ctx, Message{
		To:      ev.CustomerEmail,
		Subject: fmt.Sprintf("Ticket %s released", ev.TicketNumber),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour ticket %s for seat %s is now %s.\n",
			ev.CustomerName, ev.TicketNumber, ev.Seat, ev.Status,
		),
	})
}
