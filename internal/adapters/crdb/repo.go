package crdb

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maclarenscott/ticket-nova/internal/domain"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx runs fn inside a SERIALIZABLE transaction, translating a
// serialization abort into domain.ErrSerializationFailure so callers can
// retry without inspecting pg error codes.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
	}
	return err
}

func (r *Repository) CreatePerformance(ctx context.Context, p domain.Performance) error {
	types, err := json.Marshal(p.TicketTypes)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO performances (id, event_id, starts_at, ends_at, total_capacity, available_tickets, ticket_types, is_sold_out, is_cancelled, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, true)
	`, p.ID, p.EventID, p.StartsAt, p.EndsAt, p.TotalCapacity, p.AvailableTickets, types, p.AvailableTickets <= 0)
	return err
}

func (r *Repository) GetPerformance(ctx context.Context, id uuid.UUID) (*domain.Performance, error) {
	return scanPerformance(r.pool.QueryRow(ctx, `
		SELECT id, event_id, starts_at, ends_at, total_capacity, available_tickets, ticket_types, is_sold_out, is_cancelled, is_active, created_at, updated_at
		FROM performances WHERE id = $1
	`, id))
}

// CancelPerformance soft-deactivates; performances are never physically
// deleted once tickets exist.
func (r *Repository) CancelPerformance(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE performances SET is_cancelled = true, is_active = false, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerformance(row rowScanner) (*domain.Performance, error) {
	var p domain.Performance
	var types []byte
	err := row.Scan(&p.ID, &p.EventID, &p.StartsAt, &p.EndsAt, &p.TotalCapacity, &p.AvailableTickets, &types, &p.IsSoldOut, &p.IsCancelled, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(types) > 0 {
		if err := json.Unmarshal(types, &p.TicketTypes); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func getPerformanceForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Performance, error) {
	return scanPerformance(tx.QueryRow(ctx, `
		SELECT id, event_id, starts_at, ends_at, total_capacity, available_tickets, ticket_types, is_sold_out, is_cancelled, is_active, created_at, updated_at
		FROM performances WHERE id = $1 FOR UPDATE
	`, id))
}
