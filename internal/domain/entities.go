package domain

import (
	"time"

	"github.com/google/uuid"
)

// SeatLocator identifies one bookable position within a performance.
type SeatLocator struct {
	Section    string `json:"section"`
	Row        string `json:"row"`
	SeatNumber string `json:"seat_number"`
}

func (s SeatLocator) String() string {
	return s.Section + "/" + s.Row + "/" + s.SeatNumber
}

// TicketType is one price category offered by a performance.
type TicketType struct {
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	AvailableCount int     `json:"available_count"`
}

// Performance is a single scheduled occurrence of an event. It exclusively
// owns the capacity counters; nothing outside the store's transactional
// reserve/release paths may write AvailableTickets or IsSoldOut.
type Performance struct {
	ID               uuid.UUID
	EventID          uuid.UUID
	StartsAt         time.Time
	EndsAt           time.Time
	TotalCapacity    int
	AvailableTickets int
	TicketTypes      []TicketType
	IsSoldOut        bool
	IsCancelled      bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasTicketType reports whether the performance offers the named category.
func (p *Performance) HasTicketType(name string) bool {
	for _, tt := range p.TicketTypes {
		if tt.Name == name {
			return true
		}
	}
	return false
}

// CustomerDetails is the snapshot attached to every issued ticket.
type CustomerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Ticket references its performance by ID and snapshots price and category
// at sale time, so money math never consults the catalog after purchase.
type Ticket struct {
	ID               uuid.UUID
	TicketNumber     string
	OrderID          uuid.UUID
	PerformanceID    uuid.UUID
	CustomerID       uuid.UUID
	Category         string
	Seat             SeatLocator
	Price            float64
	Status           TicketStatus
	PaymentStatus    TicketPaymentStatus
	VerificationCode string
	CustomerName     string
	CustomerEmail    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Order aggregates the tickets issued by one reservation. It is a
// read-mostly view; capacity truth lives on the Performance.
type Order struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	PaymentID     uuid.UUID
	PerformanceID uuid.UUID
	Status        OrderStatus
	TotalAmount   float64
	Tickets       []Ticket
	CreatedAt     time.Time
}

// Payment is one payment attempt recorded by the gateway callback.
// Reservation requires Status == PaymentCompleted.
type Payment struct {
	ID          uuid.UUID
	ProviderRef string
	Amount      float64
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
