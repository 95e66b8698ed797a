package domain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidPayment       = errors.New("payment not completed")
	ErrSeatsUnavailable     = errors.New("seats unavailable")
	ErrSoldOut              = errors.New("performance sold out")
	ErrPerformanceCancelled = errors.New("performance cancelled")
	ErrCapacityExceeded     = errors.New("capacity exceeded")

	// ErrSerializationFailure marks a transaction abort under contention.
	// Safe to retry; every other error above is terminal for the call.
	ErrSerializationFailure = errors.New("serialization failure")
)

// SeatsUnavailableError carries the seats that already have a live ticket.
// It unwraps to ErrSeatsUnavailable so callers can match with errors.Is.
type SeatsUnavailableError struct {
	Seats []SeatLocator
}

func (e *SeatsUnavailableError) Error() string {
	locs := make([]string, len(e.Seats))
	for i, s := range e.Seats {
		locs[i] = s.String()
	}
	return "seats unavailable: " + strings.Join(locs, ", ")
}

func (e *SeatsUnavailableError) Unwrap() error { return ErrSeatsUnavailable }

// ValidationError rejects malformed input and illegal status transitions.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Transient reports whether the error is worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrSerializationFailure)
}
