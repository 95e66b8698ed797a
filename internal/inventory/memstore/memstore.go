// Package memstore is an in-memory inventory.Store with the same
// semantics as the crdb repository. It backs service and handler tests
// that do not want a database container.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/maclarenscott/ticket-nova/internal/domain"
)

type Store struct {
	mu           sync.Mutex
	performances map[uuid.UUID]*domain.Performance
	tickets      map[uuid.UUID]*domain.Ticket
	orders       map[uuid.UUID]*domain.Order
	payments     map[uuid.UUID]*domain.Payment

	// FailReserves makes the next n ReserveTickets calls abort with a
	// serialization failure before touching state.
	FailReserves int
}

func New() *Store {
	return &Store{
		performances: make(map[uuid.UUID]*domain.Performance),
		tickets:      make(map[uuid.UUID]*domain.Ticket),
		orders:       make(map[uuid.UUID]*domain.Order),
		payments:     make(map[uuid.UUID]*domain.Payment),
	}
}

func (s *Store) PutPerformance(p domain.Performance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.performances[p.ID] = &cp
}

func (s *Store) PutPayment(p domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.payments[p.ID] = &cp
}

func (s *Store) CreatePerformance(ctx context.Context, p domain.Performance) error {
	s.PutPerformance(p)
	return nil
}

func (s *Store) UpsertPayment(ctx context.Context, p domain.Payment) error {
	s.PutPayment(p)
	return nil
}

func (s *Store) ReserveTickets(ctx context.Context, cmd domain.ReserveCommand) (*domain.ReserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailReserves > 0 {
		s.FailReserves--
		return nil, domain.ErrSerializationFailure
	}

	payment, ok := s.payments[cmd.PaymentID]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "payment")
	}
	if payment.Status != domain.PaymentCompleted {
		return nil, errors.Wrapf(domain.ErrInvalidPayment, "payment %s is %s", payment.ID, payment.Status)
	}

	perf, ok := s.performances[cmd.PerformanceID]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "performance")
	}
	if perf.IsCancelled {
		return nil, domain.ErrPerformanceCancelled
	}
	if perf.IsSoldOut {
		return nil, domain.ErrSoldOut
	}
	for _, t := range cmd.Tickets {
		if !perf.HasTicketType(t.Category) {
			return nil, &domain.ValidationError{Field: "category", Reason: "performance has no ticket type " + t.Category}
		}
	}

	var conflicts []domain.SeatLocator
	for _, loc := range cmd.Locators() {
		if s.seatTaken(cmd.PerformanceID, loc) {
			conflicts = append(conflicts, loc)
		}
	}
	if len(conflicts) > 0 {
		return nil, &domain.SeatsUnavailableError{Seats: conflicts}
	}

	n := len(cmd.Tickets)
	if n > perf.AvailableTickets {
		return nil, errors.Wrapf(domain.ErrCapacityExceeded, "%d seats requested, %d available", n, perf.AvailableTickets)
	}

	now := time.Now()
	order := domain.Order{
		ID:            cmd.OrderID,
		CustomerID:    cmd.CustomerID,
		PaymentID:     cmd.PaymentID,
		PerformanceID: cmd.PerformanceID,
		Status:        domain.OrderConfirmed,
		TotalAmount:   cmd.TotalAmount(),
		CreatedAt:     now,
	}
	s.orders[order.ID] = &order

	issued := make([]domain.Ticket, len(cmd.Tickets))
	for i, t := range cmd.Tickets {
		t.CreatedAt = now
		t.UpdatedAt = now
		cp := t
		s.tickets[t.ID] = &cp
		issued[i] = t
	}

	perf.AvailableTickets -= n
	perf.IsSoldOut = perf.AvailableTickets <= 0
	perf.UpdatedAt = now

	res := &domain.ReserveResult{Order: order, Tickets: issued, Performance: *perf}
	res.Order.Tickets = issued
	return res, nil
}

func (s *Store) seatTaken(performanceID uuid.UUID, loc domain.SeatLocator) bool {
	for _, t := range s.tickets {
		if t.PerformanceID == performanceID && t.Seat == loc &&
			t.Status != domain.TicketCancelled && t.Status != domain.TicketRefunded {
			return true
		}
	}
	return false
}

func (s *Store) ReleaseTicket(ctx context.Context, ticketID uuid.UUID, reason domain.ReleaseReason) (*domain.ReleaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "ticket")
	}
	perf, ok := s.performances[ticket.PerformanceID]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "performance")
	}

	if ticket.Status == domain.TicketCancelled || ticket.Status == domain.TicketRefunded {
		return &domain.ReleaseResult{Ticket: *ticket, Performance: *perf, Changed: false}, nil
	}

	target := domain.TicketCancelled
	payTarget := domain.TicketPaymentCancelled
	if reason == domain.ReleaseRefund &&
		(ticket.PaymentStatus == domain.TicketPaymentPaid || ticket.PaymentStatus == domain.TicketPaymentCompleted) {
		target = domain.TicketRefunded
		payTarget = domain.TicketPaymentRefunded
	}
	if err := ticket.Transition(target); err != nil {
		return nil, err
	}
	ticket.PaymentStatus = payTarget
	ticket.UpdatedAt = time.Now()

	if perf.AvailableTickets < perf.TotalCapacity {
		perf.AvailableTickets++
	}
	perf.IsSoldOut = perf.AvailableTickets <= 0
	perf.UpdatedAt = time.Now()

	return &domain.ReleaseResult{Ticket: *ticket, Performance: *perf, Changed: true}, nil
}

func (s *Store) CheckInTicket(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "ticket")
	}
	if err := ticket.Transition(domain.TicketUsed); err != nil {
		return nil, err
	}
	ticket.UpdatedAt = time.Now()
	cp := *ticket
	return &cp, nil
}

func (s *Store) GetPerformance(ctx context.Context, id uuid.UUID) (*domain.Performance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perf, ok := s.performances[id]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "performance")
	}
	cp := *perf
	return &cp, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "order")
	}
	cp := *order
	cp.Tickets = nil
	for _, t := range s.tickets {
		if t.OrderID == id {
			cp.Tickets = append(cp.Tickets, *t)
		}
	}
	return &cp, nil
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "ticket")
	}
	cp := *t
	return &cp, nil
}
