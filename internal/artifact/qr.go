// Package artifact renders the scan payloads attached to ticket
// notifications.
package artifact

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/skip2/go-qrcode"
)

// Generator encrypts ticket claims and renders them as QR codes. The
// secret is shared with the check-in scanner.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// TicketClaim is the payload embedded in a ticket's QR code.
type TicketClaim struct {
	TicketNumber     string `json:"ticket_number"`
	PerformanceID    string `json:"performance_id"`
	Section          string `json:"section"`
	Row              string `json:"row"`
	SeatNumber       string `json:"seat_number"`
	VerificationCode string `json:"verification_code"`
}

func claimFor(t domain.Ticket) TicketClaim {
	return TicketClaim{
		TicketNumber:     t.TicketNumber,
		PerformanceID:    t.PerformanceID.String(),
		Section:          t.Seat.Section,
		Row:              t.Seat.Row,
		SeatNumber:       t.Seat.SeatNumber,
		VerificationCode: t.VerificationCode,
	}
}

// TicketQR renders the encrypted claim as a PNG QR code.
func (g *Generator) TicketQR(t domain.Ticket) ([]byte, error) {
	payload, err := g.EncryptClaim(claimFor(t))
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// EncryptClaim produces the opaque string a scanner reads back.
func (g *Generator) EncryptClaim(claim TicketClaim) (string, error) {
	data, err := json.Marshal(claim)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// DecryptClaim reverses EncryptClaim; used by check-in to validate a
// scanned payload before touching the ticket.
func (g *Generator) DecryptClaim(payload string) (*TicketClaim, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("payload too short")
	}

	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	var claim TicketClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, errors.Wrap(err, "unmarshal claim")
	}
	return &claim, nil
}
