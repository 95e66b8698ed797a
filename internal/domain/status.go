package domain

type TicketStatus string

const (
	TicketReserved  TicketStatus = "RESERVED"
	TicketPurchased TicketStatus = "PURCHASED"
	TicketActive    TicketStatus = "ACTIVE"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketRefunded  TicketStatus = "REFUNDED"
)

type TicketPaymentStatus string

const (
	TicketPaymentPending   TicketPaymentStatus = "PENDING"
	TicketPaymentPaid      TicketPaymentStatus = "PAID"
	TicketPaymentCompleted TicketPaymentStatus = "COMPLETED"
	TicketPaymentRefunded  TicketPaymentStatus = "REFUNDED"
	TicketPaymentCancelled TicketPaymentStatus = "CANCELLED"
	TicketPaymentFailed    TicketPaymentStatus = "FAILED"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

type OrderStatus string

const (
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// ReleaseReason selects the terminal status a released ticket lands in.
type ReleaseReason string

const (
	ReleaseCancelled ReleaseReason = "cancelled"
	ReleaseRefund    ReleaseReason = "refund"
)

func (r ReleaseReason) Valid() bool {
	return r == ReleaseCancelled || r == ReleaseRefund
}

// ticketTransitions is the forward edge set of the ticket lifecycle.
// USED, CANCELLED and REFUNDED are terminal.
var ticketTransitions = map[TicketStatus]map[TicketStatus]bool{
	TicketReserved: {
		TicketPurchased: true,
		TicketActive:    true,
		TicketCancelled: true,
		TicketRefunded:  true,
	},
	TicketPurchased: {
		TicketActive:    true,
		TicketUsed:      true,
		TicketCancelled: true,
		TicketRefunded:  true,
	},
	TicketActive: {
		TicketUsed:      true,
		TicketCancelled: true,
		TicketRefunded:  true,
	},
}

// Terminal reports whether no transition leaves the status.
func (s TicketStatus) Terminal() bool {
	return len(ticketTransitions[s]) == 0
}

// CanTransition reports whether s -> to is a legal lifecycle edge.
func (s TicketStatus) CanTransition(to TicketStatus) bool {
	return ticketTransitions[s][to]
}

// Transition moves the ticket to the target status, rejecting illegal
// edges with a ValidationError.
func (t *Ticket) Transition(to TicketStatus) error {
	if !t.Status.CanTransition(to) {
		return &ValidationError{
			Field:  "status",
			Reason: "cannot transition ticket from " + string(t.Status) + " to " + string(to),
		}
	}
	t.Status = to
	return nil
}
