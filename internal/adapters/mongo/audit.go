package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends an append-only trail of occupancy-affecting actions.
// Writes happen after commit and are best-effort; a failure here never
// rolls back a reservation.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) logEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogReservation(ctx context.Context, order domain.Order, tickets []domain.Ticket) error {
	numbers := make([]string, len(tickets))
	seats := make([]string, len(tickets))
	for i, t := range tickets {
		numbers[i] = t.TicketNumber
		seats[i] = t.Seat.String()
	}
	return a.logEvent(ctx, "reservation.committed", order.CustomerID, map[string]interface{}{
		"order_id":       order.ID,
		"performance_id": order.PerformanceID,
		"payment_id":     order.PaymentID,
		"total_amount":   order.TotalAmount,
		"ticket_numbers": numbers,
		"seats":          seats,
	})
}

func (a *AuditLogger) LogRelease(ctx context.Context, ticket domain.Ticket, reason domain.ReleaseReason) error {
	return a.logEvent(ctx, "ticket.released", ticket.CustomerID, map[string]interface{}{
		"ticket_id":      ticket.ID,
		"ticket_number":  ticket.TicketNumber,
		"performance_id": ticket.PerformanceID,
		"status":         ticket.Status,
		"reason":         string(reason),
	})
}

func (a *AuditLogger) LogPayment(ctx context.Context, payment domain.Payment) error {
	return a.logEvent(ctx, "payment.recorded", uuid.Nil, map[string]interface{}{
		"payment_id":   payment.ID,
		"provider_ref": payment.ProviderRef,
		"amount":       payment.Amount,
		"status":       payment.Status,
	})
}
