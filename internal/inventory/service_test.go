package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/inventory"
	"github.com/maclarenscott/ticket-nova/internal/inventory/memstore"
	"github.com/maclarenscott/ticket-nova/internal/observability"
)

type fixture struct {
	store   *memstore.Store
	svc     *inventory.Service
	perf    domain.Performance
	payment domain.Payment
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	store := memstore.New()
	perf := domain.Performance{
		ID:               uuid.New(),
		EventID:          uuid.New(),
		StartsAt:         time.Now().Add(24 * time.Hour),
		EndsAt:           time.Now().Add(27 * time.Hour),
		TotalCapacity:    capacity,
		AvailableTickets: capacity,
		TicketTypes: []domain.TicketType{
			{Name: "standard", Price: 45.50, AvailableCount: capacity},
			{Name: "vip", Price: 120, AvailableCount: 10},
		},
		IsActive: true,
	}
	store.PutPerformance(perf)
	payment := domain.Payment{
		ID:          uuid.New(),
		ProviderRef: "pay_test",
		Amount:      91,
		Status:      domain.PaymentCompleted,
	}
	store.PutPayment(payment)
	return &fixture{
		store:   store,
		svc:     inventory.NewService(store, nil, observability.NewLogger(), 3),
		perf:    perf,
		payment: payment,
	}
}

func (f *fixture) customer() domain.CustomerDetails {
	return domain.CustomerDetails{Name: "Ada Lovelace", Email: "ada@example.com"}
}

func seats(locs ...domain.SeatLocator) []domain.SeatRequest {
	out := make([]domain.SeatRequest, len(locs))
	for i, loc := range locs {
		out[i] = domain.SeatRequest{Category: "standard", Seat: loc, Price: 45.50}
	}
	return out
}

func seat(section, row, num string) domain.SeatLocator {
	return domain.SeatLocator{Section: section, Row: row, SeatNumber: num}
}

func TestReserveSeatsDecrementsAvailability(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "10"), seat("A", "1", "11")))
	if err != nil {
		t.Fatalf("ReserveSeats: %v", err)
	}
	if len(res.Tickets) != 2 {
		t.Fatalf("issued %d tickets, want 2", len(res.Tickets))
	}
	if res.Performance.AvailableTickets != 98 {
		t.Errorf("available = %d, want 98", res.Performance.AvailableTickets)
	}
	if res.Performance.IsSoldOut {
		t.Error("98 seats left but flagged sold out")
	}
	if res.Order.Status != domain.OrderConfirmed {
		t.Errorf("order status = %s, want CONFIRMED", res.Order.Status)
	}
	if res.Order.TotalAmount != 91 {
		t.Errorf("order total = %v, want 91", res.Order.TotalAmount)
	}
}

func TestReserveSeatsRejectsTakenSeat(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	if _, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "10"))); err != nil {
		t.Fatalf("first reservation: %v", err)
	}

	_, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "10"), seat("A", "1", "11")))
	var su *domain.SeatsUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected SeatsUnavailableError, got %v", err)
	}
	if len(su.Seats) != 1 || su.Seats[0] != seat("A", "1", "10") {
		t.Errorf("conflict list = %v, want the taken seat only", su.Seats)
	}

	// The rejected request must not burn capacity for the free seat.
	perf, err := f.svc.GetPerformance(ctx, f.perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perf.AvailableTickets != 99 {
		t.Errorf("available = %d, want 99 after one rejected request", perf.AvailableTickets)
	}
}

func TestReserveSeatsSoldOut(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if err != nil {
		t.Fatalf("ReserveSeats: %v", err)
	}
	if !res.Performance.IsSoldOut || res.Performance.AvailableTickets != 0 {
		t.Fatalf("expected sold out with 0 available, got %v/%d",
			res.Performance.IsSoldOut, res.Performance.AvailableTickets)
	}

	_, err = f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "2")))
	if !errors.Is(err, domain.ErrSoldOut) {
		t.Fatalf("expected ErrSoldOut, got %v", err)
	}
}

func TestReserveSeatsCapacityExceeded(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1"), seat("A", "1", "2"), seat("A", "1", "3")))
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	// Nothing was issued; availability is untouched.
	perf, err := f.svc.GetPerformance(ctx, f.perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perf.AvailableTickets != 2 {
		t.Errorf("available = %d, want 2", perf.AvailableTickets)
	}
}

func TestReserveSeatsRequiresCompletedPayment(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	pending := domain.Payment{ID: uuid.New(), Status: domain.PaymentPending}
	f.store.PutPayment(pending)

	_, err := f.svc.ReserveSeats(ctx, f.perf.ID, pending.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if !errors.Is(err, domain.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}

	_, err = f.svc.ReserveSeats(ctx, f.perf.ID, uuid.New(), uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown payment, got %v", err)
	}
}

func TestReserveSeatsCancelledPerformance(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	cancelled := f.perf
	cancelled.IsCancelled = true
	f.store.PutPerformance(cancelled)

	_, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if !errors.Is(err, domain.ErrPerformanceCancelled) {
		t.Fatalf("expected ErrPerformanceCancelled, got %v", err)
	}
}

func TestReserveSeatsUnknownCategory(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		[]domain.SeatRequest{{Category: "balcony", Seat: seat("A", "1", "1"), Price: 10}})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown category, got %v", err)
	}
}

func TestReserveSeatsRetriesTransientAborts(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	// Two aborts then success fits inside the three-attempt limit.
	f.store.FailReserves = 2
	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(res.Tickets) != 1 {
		t.Fatalf("issued %d tickets, want 1", len(res.Tickets))
	}

	// Three aborts exhaust the retries and surface the failure.
	f.store.FailReserves = 3
	_, err = f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "2")))
	if !errors.Is(err, domain.ErrSerializationFailure) {
		t.Fatalf("expected ErrSerializationFailure after exhausted retries, got %v", err)
	}
}

func TestConcurrentReservationsSameSeat(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
				seats(seat("C", "7", "42")))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrSeatsUnavailable):
		default:
			t.Fatalf("unexpected error under contention: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d reservations won the same seat, want exactly 1", wins)
	}

	perf, err := f.svc.GetPerformance(ctx, f.perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perf.AvailableTickets != 99 {
		t.Errorf("available = %d, want 99 after one winning reservation", perf.AvailableTickets)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
				seats(domain.SeatLocator{Section: "D", Row: "1", SeatNumber: uuid.NewString()}))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, domain.ErrSoldOut) && !errors.Is(err, domain.ErrCapacityExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 5 {
		t.Fatalf("%d reservations won with capacity 5", wins)
	}

	perf, err := f.svc.GetPerformance(ctx, f.perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perf.AvailableTickets != 0 {
		t.Errorf("available = %d, want 0", perf.AvailableTickets)
	}
	if !perf.IsSoldOut {
		t.Error("zero seats left but not flagged sold out")
	}
}

func TestReleaseSeatsRoundTrip(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1"), seat("A", "1", "2"), seat("A", "1", "3")))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Performance.IsSoldOut {
		t.Fatal("expected sold out after reserving full capacity")
	}

	ids := []uuid.UUID{res.Tickets[0].ID, res.Tickets[1].ID, res.Tickets[2].ID}
	released, err := f.svc.ReleaseSeats(ctx, ids, domain.ReleaseRefund)
	if err != nil {
		t.Fatalf("ReleaseSeats: %v", err)
	}
	for _, r := range released {
		if !r.Changed {
			t.Error("expected every release to change state")
		}
		if r.Ticket.Status != domain.TicketRefunded {
			t.Errorf("refund landed ticket in %s, want REFUNDED", r.Ticket.Status)
		}
	}

	perf, err := f.svc.GetPerformance(ctx, f.perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perf.AvailableTickets != 3 {
		t.Errorf("available = %d, want full pool restored", perf.AvailableTickets)
	}
	if perf.IsSoldOut {
		t.Error("pool restored but still flagged sold out")
	}

	// The freed seat is claimable again.
	if _, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1"))); err != nil {
		t.Errorf("reserving a released seat: %v", err)
	}
}

func TestReleaseSeatsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if err != nil {
		t.Fatal(err)
	}
	id := res.Tickets[0].ID

	first, err := f.svc.ReleaseSeats(ctx, []uuid.UUID{id}, domain.ReleaseCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if !first[0].Changed {
		t.Fatal("first release should change state")
	}

	second, err := f.svc.ReleaseSeats(ctx, []uuid.UUID{id}, domain.ReleaseCancelled)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if second[0].Changed {
		t.Error("second release must be a no-op")
	}

	perf, err := f.svc.GetPerformance(ctx, f.perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if perf.AvailableTickets != 10 {
		t.Errorf("available = %d, double release must not over-credit the pool", perf.AvailableTickets)
	}
}

func TestReleaseSeatsCancelKeepsCancelledStatus(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.ReleaseSeats(ctx, []uuid.UUID{res.Tickets[0].ID}, domain.ReleaseCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Ticket.Status != domain.TicketCancelled {
		t.Errorf("cancel landed ticket in %s, want CANCELLED", out[0].Ticket.Status)
	}
}

func TestReleaseSeatsValidation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	var ve *domain.ValidationError
	if _, err := f.svc.ReleaseSeats(ctx, nil, domain.ReleaseRefund); !errors.As(err, &ve) {
		t.Errorf("empty ids: expected ValidationError, got %v", err)
	}
	if _, err := f.svc.ReleaseSeats(ctx, []uuid.UUID{uuid.New()}, "shredded"); !errors.As(err, &ve) {
		t.Errorf("bad reason: expected ValidationError, got %v", err)
	}
	if _, err := f.svc.ReleaseSeats(ctx, []uuid.UUID{uuid.New()}, domain.ReleaseRefund); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown ticket: expected ErrNotFound, got %v", err)
	}
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	res, err := f.svc.ReserveSeats(ctx, f.perf.ID, f.payment.ID, uuid.New(), f.customer(),
		seats(seat("A", "1", "1")))
	if err != nil {
		t.Fatal(err)
	}
	id := res.Tickets[0].ID

	used, err := f.svc.CheckIn(ctx, id)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if used.Status != domain.TicketUsed {
		t.Fatalf("status = %s, want USED", used.Status)
	}

	// A used ticket cannot be checked in again or released.
	if _, err := f.svc.CheckIn(ctx, id); err == nil {
		t.Error("second check-in should fail")
	}
	var ve *domain.ValidationError
	if _, err := f.svc.ReleaseSeats(ctx, []uuid.UUID{id}, domain.ReleaseRefund); !errors.As(err, &ve) {
		t.Errorf("releasing a used ticket: expected ValidationError, got %v", err)
	}
}

func TestCreatePerformance(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	starts := time.Now().Add(48 * time.Hour)
	perf, err := f.svc.CreatePerformance(ctx, uuid.New(), starts, starts.Add(2*time.Hour), 250,
		[]domain.TicketType{{Name: "standard", Price: 30, AvailableCount: 250}})
	if err != nil {
		t.Fatalf("CreatePerformance: %v", err)
	}
	if perf.AvailableTickets != 250 || perf.IsSoldOut {
		t.Errorf("new performance should start with a full pool, got %d sold_out=%v",
			perf.AvailableTickets, perf.IsSoldOut)
	}

	var ve *domain.ValidationError
	if _, err := f.svc.CreatePerformance(ctx, uuid.New(), starts, starts.Add(-time.Hour), 10, nil); !errors.As(err, &ve) {
		t.Errorf("ends before starts: expected ValidationError, got %v", err)
	}
	if _, err := f.svc.CreatePerformance(ctx, uuid.New(), starts, starts.Add(time.Hour), -1, nil); !errors.As(err, &ve) {
		t.Errorf("negative capacity: expected ValidationError, got %v", err)
	}
}
