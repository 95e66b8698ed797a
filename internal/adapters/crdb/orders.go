package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maclarenscott/ticket-nova/internal/domain"
)

func insertOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, payment_id, performance_id, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.CustomerID, order.PaymentID, order.PerformanceID, order.Status, order.TotalAmount)
	return err
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, payment_id, performance_id, status, total_amount, created_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.CustomerID, &order.PaymentID, &order.PerformanceID, &order.Status, &order.TotalAmount, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, ticketSelect+` WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		order.Tickets = append(order.Tickets, *t)
	}
	return &order, rows.Err()
}

// UpdateOrderStatus cascades a released order to its status only; ticket
// and counter changes go through ReleaseTicket per constituent ticket.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, orderID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertPayment records a gateway callback. The reservation path only
// trusts status COMPLETED, re-read inside its own transaction.
func (r *Repository) UpsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, provider_ref, amount, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = $4, provider_ref = $2, updated_at = now()
	`, p.ID, p.ProviderRef, p.Amount, p.Status)
	return err
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT id, provider_ref, amount, status, created_at, updated_at FROM payments WHERE id = $1
	`, id))
}

func getPaymentForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `
		SELECT id, provider_ref, amount, status, created_at, updated_at FROM payments WHERE id = $1 FOR UPDATE
	`, id))
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.ProviderRef, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
