package domain

import (
	"github.com/google/uuid"
)

// SeatRequest is one desired seat in a reservation attempt.
type SeatRequest struct {
	Category string      `json:"category"`
	Seat     SeatLocator `json:"seat"`
	Price    float64     `json:"price"`
}

// ReserveCommand is a fully-built reservation: the tickets it carries are
// already numbered and priced, so a store only has to persist them
// atomically. Built once per call and reused across transaction retries.
type ReserveCommand struct {
	OrderID       uuid.UUID
	PerformanceID uuid.UUID
	PaymentID     uuid.UUID
	CustomerID    uuid.UUID
	Customer      CustomerDetails
	Tickets       []Ticket
}

// NewReserveCommand validates the request and synthesizes the tickets.
// Payment already cleared at this point, so tickets are born PURCHASED/PAID.
func NewReserveCommand(performanceID, paymentID, customerID uuid.UUID, customer CustomerDetails, seats []SeatRequest) (ReserveCommand, error) {
	if err := validateSeatRequests(seats); err != nil {
		return ReserveCommand{}, err
	}

	orderID := uuid.New()
	tickets := make([]Ticket, len(seats))
	for i, req := range seats {
		number := NewTicketNumber()
		tickets[i] = Ticket{
			ID:               uuid.New(),
			TicketNumber:     number,
			OrderID:          orderID,
			PerformanceID:    performanceID,
			CustomerID:       customerID,
			Category:         req.Category,
			Seat:             req.Seat,
			Price:            req.Price,
			Status:           TicketPurchased,
			PaymentStatus:    TicketPaymentPaid,
			VerificationCode: VerificationCode(number, req.Seat),
			CustomerName:     customer.Name,
			CustomerEmail:    customer.Email,
		}
	}

	return ReserveCommand{
		OrderID:       orderID,
		PerformanceID: performanceID,
		PaymentID:     paymentID,
		CustomerID:    customerID,
		Customer:      customer,
		Tickets:       tickets,
	}, nil
}

func validateSeatRequests(seats []SeatRequest) error {
	if len(seats) == 0 {
		return &ValidationError{Field: "seats", Reason: "at least one seat is required"}
	}
	seen := make(map[SeatLocator]bool, len(seats))
	for _, req := range seats {
		if req.Category == "" {
			return &ValidationError{Field: "category", Reason: "must not be empty"}
		}
		if req.Price < 0 {
			return &ValidationError{Field: "price", Reason: "must not be negative"}
		}
		if req.Seat.Section == "" || req.Seat.Row == "" || req.Seat.SeatNumber == "" {
			return &ValidationError{Field: "seat", Reason: "section, row and seat number are required"}
		}
		if seen[req.Seat] {
			return &ValidationError{Field: "seats", Reason: "duplicate seat " + req.Seat.String()}
		}
		seen[req.Seat] = true
	}
	return nil
}

// Locators returns the seat locators of every ticket in the command.
func (c ReserveCommand) Locators() []SeatLocator {
	locs := make([]SeatLocator, len(c.Tickets))
	for i, t := range c.Tickets {
		locs[i] = t.Seat
	}
	return locs
}

// TotalAmount is the order total, summed from the ticket price snapshots.
func (c ReserveCommand) TotalAmount() float64 {
	var total float64
	for _, t := range c.Tickets {
		total += t.Price
	}
	return total
}

// ReserveResult is the committed outcome of a reservation.
type ReserveResult struct {
	Order       Order
	Tickets     []Ticket
	Performance Performance
}

// ReleaseResult is the outcome of releasing one ticket. Changed is false
// when the ticket was already cancelled or refunded; the performance
// counter is untouched in that case.
type ReleaseResult struct {
	Ticket      Ticket
	Performance Performance
	Changed     bool
}
