package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
)

// tokenEncoding is unpadded base32 so ticket numbers stay human-legible
// (no lowercase lookalikes, no '=' tails).
var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewTicketNumber returns a random, human-legible ticket number. Random
// rather than sequential so concurrent reservations never contend on a
// shared counter.
func NewTicketNumber() string {
	var buf [10]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "TKT-" + tokenEncoding.EncodeToString(buf[:])
}

// VerificationCode derives the opaque scan payload for a ticket
// deterministically from its number and seat identity.
func VerificationCode(ticketNumber string, seat SeatLocator) string {
	sum := sha256.Sum256([]byte(ticketNumber + "|" + seat.String()))
	return hex.EncodeToString(sum[:16])
}
