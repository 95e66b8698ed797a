package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maclarenscott/ticket-nova/internal/adapters/crdb"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRepository(t *testing.T) (*crdb.Repository, context.Context) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := crdb.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}

	return crdb.NewRepository(pool), ctx
}

func seedPerformance(t *testing.T, ctx context.Context, repo *crdb.Repository, capacity int) domain.Performance {
	t.Helper()
	p := domain.Performance{
		ID:               uuid.New(),
		EventID:          uuid.New(),
		StartsAt:         time.Now().Add(24 * time.Hour),
		EndsAt:           time.Now().Add(27 * time.Hour),
		TotalCapacity:    capacity,
		AvailableTickets: capacity,
		TicketTypes:      []domain.TicketType{{Name: "standard", Price: 45.50, AvailableCount: capacity}},
	}
	if err := repo.CreatePerformance(ctx, p); err != nil {
		t.Fatal(err)
	}
	return p
}

func seedPayment(t *testing.T, ctx context.Context, repo *crdb.Repository, status domain.PaymentStatus) domain.Payment {
	t.Helper()
	p := domain.Payment{ID: uuid.New(), ProviderRef: "pay_test", Amount: 91, Status: status}
	if err := repo.UpsertPayment(ctx, p); err != nil {
		t.Fatal(err)
	}
	return p
}

func reserveCmd(t *testing.T, perfID, paymentID uuid.UUID, locs ...domain.SeatLocator) domain.ReserveCommand {
	t.Helper()
	seats := make([]domain.SeatRequest, len(locs))
	for i, loc := range locs {
		seats[i] = domain.SeatRequest{Category: "standard", Seat: loc, Price: 45.50}
	}
	cmd, err := domain.NewReserveCommand(perfID, paymentID, uuid.New(),
		domain.CustomerDetails{Name: "Ada Lovelace", Email: "ada@example.com"}, seats)
	if err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestRepository_ReserveTickets(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo, ctx := startRepository(t)
	perf := seedPerformance(t, ctx, repo, 10)
	payment := seedPayment(t, ctx, repo, domain.PaymentCompleted)

	seatA1 := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "1"}
	seatA2 := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "2"}

	res, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, seatA1, seatA2))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(res.Tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(res.Tickets))
	}
	if res.Performance.AvailableTickets != 8 {
		t.Errorf("expected 8 available, got %d", res.Performance.AvailableTickets)
	}

	// Same seat again conflicts and leaves the counter alone.
	_, err = repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, seatA1))
	var su *domain.SeatsUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected SeatsUnavailableError, got %v", err)
	}
	fetched, err := repo.GetPerformance(ctx, perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.AvailableTickets != 8 {
		t.Errorf("conflict must not burn capacity, got %d available", fetched.AvailableTickets)
	}

	// The committed reservation produced outbox rows.
	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 {
		t.Error("expected unpublished outbox records after a reservation")
	}
}

func TestRepository_ReserveTicketsPaymentGate(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo, ctx := startRepository(t)
	perf := seedPerformance(t, ctx, repo, 10)
	pending := seedPayment(t, ctx, repo, domain.PaymentPending)

	seat := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "1"}
	_, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, pending.ID, seat))
	if !errors.Is(err, domain.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}

	_, err = repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, uuid.New(), seat))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_SoldOutAndRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo, ctx := startRepository(t)
	perf := seedPerformance(t, ctx, repo, 1)
	payment := seedPayment(t, ctx, repo, domain.PaymentCompleted)

	seat := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "1"}
	res, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, seat))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Performance.IsSoldOut || res.Performance.AvailableTickets != 0 {
		t.Fatalf("expected sold out at 0, got %v/%d", res.Performance.IsSoldOut, res.Performance.AvailableTickets)
	}

	other := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "2"}
	if _, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, other)); !errors.Is(err, domain.ErrSoldOut) {
		t.Fatalf("expected ErrSoldOut, got %v", err)
	}

	rel, err := repo.ReleaseTicket(ctx, res.Tickets[0].ID, domain.ReleaseRefund)
	if err != nil {
		t.Fatal(err)
	}
	if !rel.Changed || rel.Ticket.Status != domain.TicketRefunded {
		t.Fatalf("expected refunded release, got changed=%v status=%s", rel.Changed, rel.Ticket.Status)
	}
	if rel.Performance.AvailableTickets != 1 || rel.Performance.IsSoldOut {
		t.Errorf("release must restore the pool, got %d sold_out=%v",
			rel.Performance.AvailableTickets, rel.Performance.IsSoldOut)
	}

	// Releasing again is a no-op.
	again, err := repo.ReleaseTicket(ctx, res.Tickets[0].ID, domain.ReleaseRefund)
	if err != nil {
		t.Fatal(err)
	}
	if again.Changed {
		t.Error("second release must not change state")
	}
	fetched, err := repo.GetPerformance(ctx, perf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.AvailableTickets != 1 {
		t.Errorf("double release over-credited the pool: %d", fetched.AvailableTickets)
	}

	// The freed seat can be claimed again.
	if _, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, seat)); err != nil {
		t.Errorf("reserving a released seat: %v", err)
	}
}

func TestRepository_CheckInAndOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo, ctx := startRepository(t)
	perf := seedPerformance(t, ctx, repo, 5)
	payment := seedPayment(t, ctx, repo, domain.PaymentCompleted)

	seat := domain.SeatLocator{Section: "B", Row: "2", SeatNumber: "7"}
	res, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, seat))
	if err != nil {
		t.Fatal(err)
	}

	order, err := repo.GetOrder(ctx, res.Order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != domain.OrderConfirmed || len(order.Tickets) != 1 {
		t.Errorf("expected confirmed order with 1 ticket, got %s with %d", order.Status, len(order.Tickets))
	}

	used, err := repo.CheckInTicket(ctx, res.Tickets[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if used.Status != domain.TicketUsed {
		t.Errorf("expected USED, got %s", used.Status)
	}
	if _, err := repo.CheckInTicket(ctx, res.Tickets[0].ID); err == nil {
		t.Error("second check-in should fail")
	}
}

func TestRepository_CancelledPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	repo, ctx := startRepository(t)
	perf := seedPerformance(t, ctx, repo, 5)
	payment := seedPayment(t, ctx, repo, domain.PaymentCompleted)

	if err := repo.CancelPerformance(ctx, perf.ID); err != nil {
		t.Fatal(err)
	}

	seat := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "1"}
	_, err := repo.ReserveTickets(ctx, reserveCmd(t, perf.ID, payment.ID, seat))
	if !errors.Is(err, domain.ErrPerformanceCancelled) {
		t.Fatalf("expected ErrPerformanceCancelled, got %v", err)
	}
}
