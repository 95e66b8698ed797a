package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/observability"
)

// ReserveTickets runs the whole reservation inside one SERIALIZABLE
// transaction: payment check, performance re-read, seat conflict check,
// ticket inserts guarded by the partial unique index, counter decrement
// and outbox rows. Nothing survives a failure in any step.
func (r *Repository) ReserveTickets(ctx context.Context, cmd domain.ReserveCommand) (*domain.ReserveResult, error) {
	var res domain.ReserveResult
	start := time.Now()

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		payment, err := getPaymentForUpdate(ctx, tx, cmd.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentCompleted {
			return errors.Wrapf(domain.ErrInvalidPayment, "payment %s is %s", payment.ID, payment.Status)
		}

		perf, err := getPerformanceForUpdate(ctx, tx, cmd.PerformanceID)
		if err != nil {
			return err
		}
		if perf.IsCancelled {
			return domain.ErrPerformanceCancelled
		}
		if perf.IsSoldOut {
			return domain.ErrSoldOut
		}
		for _, t := range cmd.Tickets {
			if !perf.HasTicketType(t.Category) {
				return &domain.ValidationError{Field: "category", Reason: "performance has no ticket type " + t.Category}
			}
		}

		conflicts, err := seatConflicts(ctx, tx, cmd.PerformanceID, cmd.Locators())
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &domain.SeatsUnavailableError{Seats: conflicts}
		}

		// Defensive pre-check before any write. The guarded UPDATE below
		// re-checks under the same transaction.
		n := len(cmd.Tickets)
		if n > perf.AvailableTickets {
			return errors.Wrapf(domain.ErrCapacityExceeded, "%d seats requested, %d available", n, perf.AvailableTickets)
		}

		order := domain.Order{
			ID:            cmd.OrderID,
			CustomerID:    cmd.CustomerID,
			PaymentID:     cmd.PaymentID,
			PerformanceID: cmd.PerformanceID,
			Status:        domain.OrderConfirmed,
			TotalAmount:   cmd.TotalAmount(),
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		for i := range cmd.Tickets {
			inserted, err := insertTicket(ctx, tx, cmd.Tickets[i])
			if err != nil {
				return err
			}
			// The partial unique index is the race-safe enforcement; the
			// conflict query above only exists to report the full list.
			if !inserted {
				return &domain.SeatsUnavailableError{Seats: []domain.SeatLocator{cmd.Tickets[i].Seat}}
			}
		}

		updated, err := decrementAvailable(ctx, tx, cmd.PerformanceID, n)
		if err != nil {
			return err
		}
		perf.AvailableTickets = updated.AvailableTickets
		perf.IsSoldOut = updated.IsSoldOut
		perf.UpdatedAt = updated.UpdatedAt

		for _, t := range cmd.Tickets {
			if err := insertTicketOutbox(ctx, tx, "ticket.issued", t); err != nil {
				return err
			}
		}
		if err := insertOrderOutbox(ctx, tx, "order.confirmed", order); err != nil {
			return err
		}

		res.Order = order
		res.Tickets = cmd.Tickets
		res.Performance = *perf
		return nil
	})
	observability.DBTxDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	res.Order.Tickets = res.Tickets
	return &res, nil
}

// ReleaseTicket is the inverse of reservation for a single ticket. Each
// ticket/performance pair is its own atomic step; releasing an already
// cancelled or refunded ticket is a no-op on the counter.
func (r *Repository) ReleaseTicket(ctx context.Context, ticketID uuid.UUID, reason domain.ReleaseReason) (*domain.ReleaseResult, error) {
	var res domain.ReleaseResult

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		ticket, err := getTicketForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		if ticket.Status == domain.TicketCancelled || ticket.Status == domain.TicketRefunded {
			perf, err := getPerformanceForUpdate(ctx, tx, ticket.PerformanceID)
			if err != nil {
				return err
			}
			res.Ticket = *ticket
			res.Performance = *perf
			res.Changed = false
			return nil
		}

		target := domain.TicketCancelled
		payTarget := domain.TicketPaymentCancelled
		if reason == domain.ReleaseRefund &&
			(ticket.PaymentStatus == domain.TicketPaymentPaid || ticket.PaymentStatus == domain.TicketPaymentCompleted) {
			target = domain.TicketRefunded
			payTarget = domain.TicketPaymentRefunded
		}
		if err := ticket.Transition(target); err != nil {
			return err
		}
		ticket.PaymentStatus = payTarget

		_, err = tx.Exec(ctx, `
			UPDATE tickets SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1
		`, ticket.ID, ticket.Status, ticket.PaymentStatus)
		if err != nil {
			return err
		}

		perf, err := incrementAvailable(ctx, tx, ticket.PerformanceID)
		if err != nil {
			return err
		}

		if err := insertTicketOutbox(ctx, tx, "ticket.released", *ticket); err != nil {
			return err
		}

		res.Ticket = *ticket
		res.Performance = *perf
		res.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckInTicket marks a ticket as used. No counter change: the seat stays
// occupied.
func (r *Repository) CheckInTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	var out domain.Ticket
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		ticket, err := getTicketForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if err := ticket.Transition(domain.TicketUsed); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE tickets SET status = $2, updated_at = now() WHERE id = $1
		`, ticket.ID, ticket.Status)
		if err != nil {
			return err
		}
		out = *ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, ticketSelect+` WHERE id = $1`, id))
}

const ticketSelect = `
	SELECT id, ticket_number, order_id, performance_id, customer_id, category, section, row_label, seat_number, price, status, payment_status, verification_code, customer_name, customer_email, created_at, updated_at
	FROM tickets`

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.TicketNumber, &t.OrderID, &t.PerformanceID, &t.CustomerID, &t.Category,
		&t.Seat.Section, &t.Seat.Row, &t.Seat.SeatNumber, &t.Price, &t.Status, &t.PaymentStatus,
		&t.VerificationCode, &t.CustomerName, &t.CustomerEmail, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func getTicketForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Ticket, error) {
	return scanTicket(tx.QueryRow(ctx, ticketSelect+` WHERE id = $1 FOR UPDATE`, id))
}

func seatConflicts(ctx context.Context, tx pgx.Tx, performanceID uuid.UUID, seats []domain.SeatLocator) ([]domain.SeatLocator, error) {
	var conflicts []domain.SeatLocator
	for _, seat := range seats {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM tickets
				WHERE performance_id = $1 AND section = $2 AND row_label = $3 AND seat_number = $4
				AND status NOT IN ('CANCELLED', 'REFUNDED')
			)
		`, performanceID, seat.Section, seat.Row, seat.SeatNumber).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			conflicts = append(conflicts, seat)
		}
	}
	return conflicts, nil
}

func insertTicket(ctx context.Context, tx pgx.Tx, t domain.Ticket) (bool, error) {
	result, err := tx.Exec(ctx, `
		INSERT INTO tickets (id, ticket_number, order_id, performance_id, customer_id, category, section, row_label, seat_number, price, status, payment_status, verification_code, customer_name, customer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (performance_id, section, row_label, seat_number) WHERE status NOT IN ('CANCELLED', 'REFUNDED') DO NOTHING
	`, t.ID, t.TicketNumber, t.OrderID, t.PerformanceID, t.CustomerID, t.Category,
		t.Seat.Section, t.Seat.Row, t.Seat.SeatNumber, t.Price, t.Status, t.PaymentStatus,
		t.VerificationCode, t.CustomerName, t.CustomerEmail)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

type counterUpdate struct {
	AvailableTickets int
	IsSoldOut        bool
	UpdatedAt        time.Time
}

func decrementAvailable(ctx context.Context, tx pgx.Tx, performanceID uuid.UUID, n int) (*counterUpdate, error) {
	var u counterUpdate
	err := tx.QueryRow(ctx, `
		UPDATE performances
		SET available_tickets = available_tickets - $2,
		    is_sold_out = available_tickets - $2 <= 0,
		    updated_at = now()
		WHERE id = $1 AND available_tickets >= $2
		RETURNING available_tickets, is_sold_out, updated_at
	`, performanceID, n).Scan(&u.AvailableTickets, &u.IsSoldOut, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrCapacityExceeded, "decrement by %d rejected", n)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func incrementAvailable(ctx context.Context, tx pgx.Tx, performanceID uuid.UUID) (*domain.Performance, error) {
	row := tx.QueryRow(ctx, `
		UPDATE performances
		SET available_tickets = least(available_tickets + 1, total_capacity),
		    is_sold_out = least(available_tickets + 1, total_capacity) <= 0,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, event_id, starts_at, ends_at, total_capacity, available_tickets, ticket_types, is_sold_out, is_cancelled, is_active, created_at, updated_at
	`, performanceID)
	return scanPerformance(row)
}

func insertTicketOutbox(ctx context.Context, tx pgx.Tx, eventType string, t domain.Ticket) error {
	payload, err := json.Marshal(TicketEvent{
		TicketID:         t.ID,
		TicketNumber:     t.TicketNumber,
		OrderID:          t.OrderID,
		PerformanceID:    t.PerformanceID,
		Category:         t.Category,
		Seat:             t.Seat,
		Price:            t.Price,
		Status:           string(t.Status),
		VerificationCode: t.VerificationCode,
		CustomerName:     t.CustomerName,
		CustomerEmail:    t.CustomerEmail,
	})
	if err != nil {
		return err
	}
	return insertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "ticket",
		AggregateID:   t.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     eventType + ":" + t.TicketNumber,
	})
}

func insertOrderOutbox(ctx context.Context, tx pgx.Tx, eventType string, o domain.Order) error {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":       o.ID,
		"performance_id": o.PerformanceID,
		"status":         o.Status,
		"total_amount":   o.TotalAmount,
	})
	if err != nil {
		return err
	}
	return insertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   o.ID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     eventType + ":" + o.ID.String(),
	})
}

// Ticket reconstructs the fields a consumer needs to render artifacts.
func (e TicketEvent) Ticket() domain.Ticket {
	return domain.Ticket{
		ID:               e.TicketID,
		TicketNumber:     e.TicketNumber,
		OrderID:          e.OrderID,
		PerformanceID:    e.PerformanceID,
		Category:         e.Category,
		Seat:             e.Seat,
		Price:            e.Price,
		Status:           domain.TicketStatus(e.Status),
		VerificationCode: e.VerificationCode,
		CustomerName:     e.CustomerName,
		CustomerEmail:    e.CustomerEmail,
	}
}

// TicketEvent is the outbox payload consumed by the notifier.
type TicketEvent struct {
	TicketID         uuid.UUID          `json:"ticket_id"`
	TicketNumber     string             `json:"ticket_number"`
	OrderID          uuid.UUID          `json:"order_id"`
	PerformanceID    uuid.UUID          `json:"performance_id"`
	Category         string             `json:"category"`
	Seat             domain.SeatLocator `json:"seat"`
	Price            float64            `json:"price"`
	Status           string             `json:"status"`
	VerificationCode string             `json:"verification_code"`
	CustomerName     string             `json:"customer_name"`
	CustomerEmail    string             `json:"customer_email"`
}
