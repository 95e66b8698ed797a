// Package inventory centralizes every occupancy-affecting transition: no
// other code path mutates a performance's available ticket count or
// sold-out flag.
package inventory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/observability"
)

// Store executes the occupancy transitions atomically. The crdb
// Repository is the production implementation.
type Store interface {
	ReserveTickets(ctx context.Context, cmd domain.ReserveCommand) (*domain.ReserveResult, error)
	ReleaseTicket(ctx context.Context, ticketID uuid.UUID, reason domain.ReleaseReason) (*domain.ReleaseResult, error)
	CheckInTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error)
	GetPerformance(ctx context.Context, id uuid.UUID) (*domain.Performance, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	CreatePerformance(ctx context.Context, p domain.Performance) error
}

// Auditor records committed occupancy changes, outside the transaction.
type Auditor interface {
	LogReservation(ctx context.Context, order domain.Order, tickets []domain.Ticket) error
	LogRelease(ctx context.Context, ticket domain.Ticket, reason domain.ReleaseReason) error
}

type Service struct {
	store       Store
	audit       Auditor
	logger      observability.Logger
	maxAttempts int
}

// NewService builds the reservation service. audit may be nil.
func NewService(store Store, audit Auditor, logger observability.Logger, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{store: store, audit: audit, logger: logger, maxAttempts: maxAttempts}
}

// ReserveSeats atomically claims the requested seats for a performance
// against a completed payment. Transaction aborts under contention are
// retried a bounded number of times; every other error is terminal for
// the call and leaves no partial state.
func (s *Service) ReserveSeats(ctx context.Context, performanceID, paymentID, customerID uuid.UUID, customer domain.CustomerDetails, seats []domain.SeatRequest) (*domain.ReserveResult, error) {
	cmd, err := domain.NewReserveCommand(performanceID, paymentID, customerID, customer, seats)
	if err != nil {
		observability.ReservationsTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	res, err := s.withRetry(ctx, "reserve", func() (*domain.ReserveResult, error) {
		return s.store.ReserveTickets(ctx, cmd)
	})
	if err != nil {
		observability.ReservationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	observability.ReservationsTotal.WithLabelValues("success").Inc()
	observability.TicketsIssued.Add(float64(len(res.Tickets)))

	// Post-commit, best-effort. The reservation is already durable.
	if s.audit != nil {
		if err := s.audit.LogReservation(ctx, res.Order, res.Tickets); err != nil {
			s.logger.WithError(err).WithField("order_id", res.Order.ID).Warn("audit write failed")
		}
	}
	return res, nil
}

// ReleaseSeats cancels or refunds tickets, returning each seat to its
// performance's pool. Each ticket/performance pair is an independent
// atomic step; already-released tickets are skipped without touching the
// counter.
func (s *Service) ReleaseSeats(ctx context.Context, ticketIDs []uuid.UUID, reason domain.ReleaseReason) ([]domain.ReleaseResult, error) {
	if len(ticketIDs) == 0 {
		return nil, &domain.ValidationError{Field: "ticket_ids", Reason: "at least one ticket is required"}
	}
	if !reason.Valid() {
		return nil, &domain.ValidationError{Field: "reason", Reason: "must be cancelled or refund"}
	}

	results := make([]domain.ReleaseResult, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		id := id
		res, err := s.withRetryRelease(ctx, func() (*domain.ReleaseResult, error) {
			return s.store.ReleaseTicket(ctx, id, reason)
		})
		if err != nil {
			return results, err
		}
		if res.Changed {
			observability.TicketsReleased.Inc()
			if s.audit != nil {
				if auditErr := s.audit.LogRelease(ctx, res.Ticket, reason); auditErr != nil {
					s.logger.WithError(auditErr).WithField("ticket_id", res.Ticket.ID).Warn("audit write failed")
				}
			}
		}
		results = append(results, *res)
	}
	return results, nil
}

// CheckIn marks a ticket as used at the door.
func (s *Service) CheckIn(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	return s.store.CheckInTicket(ctx, ticketID)
}

func (s *Service) GetPerformance(ctx context.Context, id uuid.UUID) (*domain.Performance, error) {
	return s.store.GetPerformance(ctx, id)
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// CreatePerformance registers a new performance with a full seat pool.
func (s *Service) CreatePerformance(ctx context.Context, eventID uuid.UUID, startsAt, endsAt time.Time, totalCapacity int, ticketTypes []domain.TicketType) (*domain.Performance, error) {
	if totalCapacity < 0 {
		return nil, &domain.ValidationError{Field: "total_capacity", Reason: "must not be negative"}
	}
	if !endsAt.After(startsAt) {
		return nil, &domain.ValidationError{Field: "ends_at", Reason: "must be after starts_at"}
	}
	for _, tt := range ticketTypes {
		if tt.Name == "" {
			return nil, &domain.ValidationError{Field: "ticket_types", Reason: "name must not be empty"}
		}
		if tt.Price < 0 {
			return nil, &domain.ValidationError{Field: "ticket_types", Reason: "price must not be negative"}
		}
	}
	p := domain.Performance{
		ID:               uuid.New(),
		EventID:          eventID,
		StartsAt:         startsAt,
		EndsAt:           endsAt,
		TotalCapacity:    totalCapacity,
		AvailableTickets: totalCapacity,
		TicketTypes:      ticketTypes,
		IsSoldOut:        totalCapacity <= 0,
		IsActive:         true,
	}
	if err := s.store.CreatePerformance(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func() (*domain.ReserveResult, error)) (*domain.ReserveResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		if !domain.Transient(err) || attempt >= s.maxAttempts {
			return nil, err
		}
		s.logger.WithField("op", op).WithField("attempt", attempt).Warn("transaction aborted under contention, retrying")
		if err := sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (s *Service) withRetryRelease(ctx context.Context, fn func() (*domain.ReleaseResult, error)) (*domain.ReleaseResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		if !domain.Transient(err) || attempt >= s.maxAttempts {
			return nil, err
		}
		if err := sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func sleepBackoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(1<<attempt) * 25 * time.Millisecond):
		return nil
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrSeatsUnavailable):
		return "seats_unavailable"
	case errors.Is(err, domain.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, domain.ErrPerformanceCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrInvalidPayment):
		return "invalid_payment"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrSerializationFailure):
		return "transient"
	default:
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return "validation"
		}
		return "error"
	}
}
