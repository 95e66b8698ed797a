package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/maclarenscott/ticket-nova/internal/adapters/mongo"
	"github.com/maclarenscott/ticket-nova/internal/config"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/idempotency"
	"github.com/maclarenscott/ticket-nova/internal/inventory"
)

// PaymentRecorder persists gateway callbacks. Implemented by the crdb
// repository.
type PaymentRecorder interface {
	UpsertPayment(ctx context.Context, p domain.Payment) error
}

type Readiness func(ctx context.Context) error

type Handlers struct {
	cfg      *config.Config
	svc      *inventory.Service
	payments PaymentRecorder
	catalog  *mongoadapter.CatalogRepository
	idemp    *idempotency.Idempotency
	ready    []Readiness
}

func NewHandlers(cfg *config.Config, svc *inventory.Service, payments PaymentRecorder, catalog *mongoadapter.CatalogRepository, idemp *idempotency.Idempotency, ready ...Readiness) *Handlers {
	return &Handlers{
		cfg:      cfg,
		svc:      svc,
		payments: payments,
		catalog:  catalog,
		idemp:    idemp,
		ready:    ready,
	}
}

type reservationRequest struct {
	PerformanceID uuid.UUID              `json:"performance_id"`
	PaymentID     uuid.UUID              `json:"payment_id"`
	CustomerID    uuid.UUID              `json:"customer_id"`
	Customer      domain.CustomerDetails `json:"customer"`
	Seats         []domain.SeatRequest   `json:"seats"`
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if replayed := h.replay(w, r, key); replayed {
		return
	}

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	customerID := req.CustomerID
	if sub, ok := SubjectFromContext(r.Context()); ok {
		customerID = sub
	}

	res, err := h.svc.ReserveSeats(r.Context(), req.PerformanceID, req.PaymentID, customerID, req.Customer, req.Seats)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	tickets := make([]map[string]interface{}, len(res.Tickets))
	for i, t := range res.Tickets {
		tickets[i] = map[string]interface{}{
			"id":            t.ID,
			"ticket_number": t.TicketNumber,
			"category":      t.Category,
			"seat":          t.Seat,
			"price":         t.Price,
			"status":        t.Status,
		}
	}
	resp := map[string]interface{}{
		"order_id":          res.Order.ID,
		"status":            res.Order.Status,
		"total_amount":      res.Order.TotalAmount,
		"tickets":           tickets,
		"available_tickets": res.Performance.AvailableTickets,
		"is_sold_out":       res.Performance.IsSoldOut,
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.remember(r.Context(), key, http.StatusCreated, data)
}

type releaseRequest struct {
	TicketIDs []uuid.UUID          `json:"ticket_ids"`
	Reason    domain.ReleaseReason `json:"reason"`
}

func (h *Handlers) ReleaseTickets(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if replayed := h.replay(w, r, key); replayed {
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.svc.ReleaseSeats(r.Context(), req.TicketIDs, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	released := make([]map[string]interface{}, len(results))
	for i, res := range results {
		released[i] = map[string]interface{}{
			"ticket_id":         res.Ticket.ID,
			"status":            res.Ticket.Status,
			"changed":           res.Changed,
			"available_tickets": res.Performance.AvailableTickets,
			"is_sold_out":       res.Performance.IsSoldOut,
		}
	}
	data, _ := json.Marshal(map[string]interface{}{"released": released})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)

	h.remember(r.Context(), key, http.StatusOK, data)
}

func (h *Handlers) CheckInTicket(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	ticket, err := h.svc.CheckIn(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ticket_id":     ticket.ID,
		"ticket_number": ticket.TicketNumber,
		"status":        ticket.Status,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"order_id":     order.ID,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
		"tickets":      order.Tickets,
	})
}

func (h *Handlers) GetPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	perf, err := h.svc.GetPerformance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":                perf.ID,
		"event_id":          perf.EventID,
		"starts_at":         perf.StartsAt,
		"ends_at":           perf.EndsAt,
		"total_capacity":    perf.TotalCapacity,
		"available_tickets": perf.AvailableTickets,
		"ticket_types":      perf.TicketTypes,
		"is_sold_out":       perf.IsSoldOut,
		"is_cancelled":      perf.IsCancelled,
	})
}

type createPerformanceRequest struct {
	EventID       uuid.UUID           `json:"event_id"`
	StartsAt      time.Time           `json:"starts_at"`
	EndsAt        time.Time           `json:"ends_at"`
	TotalCapacity int                 `json:"total_capacity"`
	TicketTypes   []domain.TicketType `json:"ticket_types"`
}

func (h *Handlers) CreatePerformance(w http.ResponseWriter, r *http.Request) {
	var req createPerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	perf, err := h.svc.CreatePerformance(r.Context(), req.EventID, req.StartsAt, req.EndsAt, req.TotalCapacity, req.TicketTypes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.catalog != nil {
		ref := mongoadapter.PerformanceRef{
			PerformanceID: perf.ID,
			StartsAt:      perf.StartsAt,
			TicketTypes:   perf.TicketTypes,
		}
		if err := h.catalog.AttachPerformance(r.Context(), req.EventID, ref); err != nil && !errors.Is(err, domain.ErrNotFound) {
			loggerFrom(r.Context()).WithError(err).Warn("catalog update failed")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":                perf.ID,
		"available_tickets": perf.AvailableTickets,
		"is_sold_out":       perf.IsSoldOut,
	})
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}

	var doc mongoadapter.EventDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	if err := h.catalog.CreateEvent(r.Context(), doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"event_id": doc.ID})
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	event, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	events, err := h.catalog.ListUpcoming(r.Context(), time.Now(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"events": events})
}

type paymentCallbackRequest struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	ProviderRef string    `json:"provider_ref"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
}

// PaymentCallback records what the gateway reported. Reservation re-reads
// the payment inside its own transaction, so a racing callback cannot be
// half-trusted.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PaymentID == uuid.Nil {
		http.Error(w, "payment_id is required", http.StatusBadRequest)
		return
	}

	status, ok := mapGatewayStatus(req.Status)
	if !ok {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	err := h.payments.UpsertPayment(r.Context(), domain.Payment{
		ID:          req.PaymentID,
		ProviderRef: req.ProviderRef,
		Amount:      req.Amount,
		Status:      status,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func mapGatewayStatus(s string) (domain.PaymentStatus, bool) {
	switch s {
	case "SUCCEEDED", "COMPLETED":
		return domain.PaymentCompleted, true
	case "PENDING":
		return domain.PaymentPending, true
	case "PROCESSING":
		return domain.PaymentProcessing, true
	case "FAILED":
		return domain.PaymentFailed, true
	case "REFUNDED":
		return domain.PaymentRefunded, true
	default:
		return "", false
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.ready {
		if err := check(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	if h.idemp == nil || key == "" {
		return false
	}
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		loggerFrom(r.Context()).WithError(err).Warn("idempotency lookup failed")
		return false
	}
	if existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) remember(ctx context.Context, key string, status int, data []byte) {
	if h.idemp == nil || key == "" {
		return
	}
	if err := h.idemp.Set(ctx, key, idempotency.Response{Status: status, Result: data}); err != nil {
		loggerFrom(ctx).WithError(err).Warn("idempotency store failed")
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	var su *domain.SeatsUnavailableError
	if errors.As(err, &su) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "seats unavailable",
			"seats": su.Seats,
		})
		return
	}

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidPayment):
		http.Error(w, "payment not completed", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrSoldOut):
		http.Error(w, "performance sold out", http.StatusConflict)
	case errors.Is(err, domain.ErrPerformanceCancelled):
		http.Error(w, "performance cancelled", http.StatusConflict)
	case errors.Is(err, domain.ErrCapacityExceeded):
		http.Error(w, "not enough tickets available", http.StatusConflict)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "busy, try again", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
