package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/maclarenscott/ticket-nova/internal/adapters/crdb"
	"github.com/maclarenscott/ticket-nova/internal/artifact"
	"github.com/maclarenscott/ticket-nova/internal/domain"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

type captureSender struct {
	sent []Message
}

func (c *captureSender) Send(ctx context.Context, msg Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

func ticketEventBody(t *testing.T, email string) []byte {
	t.Helper()
	number := domain.NewTicketNumber()
	seat := domain.SeatLocator{Section: "A", Row: "1", SeatNumber: "10"}
	ev := crdb.TicketEvent{
		TicketID:         uuid.New(),
		TicketNumber:     number,
		PerformanceID:    uuid.New(),
		OrderID:          uuid.New(),
		Category:         "standard",
		Seat:             seat,
		Price:            45.50,
		Status:           string(domain.TicketPurchased),
		VerificationCode: domain.VerificationCode(number, seat),
		CustomerName:     "Ada Lovelace",
		CustomerEmail:    email,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestNotifierSendsTicketWithQR(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(nil, artifact.NewGenerator("secret"), sender, observability.NewLogger())

	err := n.handle(context.Background(), amqp.Delivery{
		RoutingKey: "ticket.issued",
		Body:       ticketEventBody(t, "ada@example.com"),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ada@example.com" {
		t.Errorf("to = %q", msg.To)
	}
	if !bytes.HasPrefix(msg.Attachment, []byte("\x89PNG")) {
		t.Error("attachment is not a PNG")
	}
	if !strings.HasSuffix(msg.AttachmentName, ".png") {
		t.Errorf("attachment name = %q", msg.AttachmentName)
	}
}

func TestNotifierSkipsEventWithoutEmail(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(nil, artifact.NewGenerator("secret"), sender, observability.NewLogger())

	err := n.handle(context.Background(), amqp.Delivery{
		RoutingKey: "ticket.issued",
		Body:       ticketEventBody(t, ""),
	})
	if err != nil {
		t.Fatalf("an event without email must not error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sender.sent))
	}
}

func TestNotifierIgnoresOrderEvents(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(nil, artifact.NewGenerator("secret"), sender, observability.NewLogger())

	err := n.handle(context.Background(), amqp.Delivery{
		RoutingKey: "order.confirmed",
		Body:       []byte(`{"order_id":"x"}`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("order events should not email the customer")
	}
}

func TestBuildMIME(t *testing.T) {
	plain := buildMIME("tickets@ticketnova.local", Message{
		To:      "ada@example.com",
		Subject: "Your ticket",
		Body:    "hello",
	})
	if !bytes.Contains(plain, []byte("Content-Type: text/plain")) {
		t.Error("plain message missing text/plain header")
	}
	if bytes.Contains(plain, []byte("multipart/mixed")) {
		t.Error("plain message should not be multipart")
	}

	mixed := buildMIME("tickets@ticketnova.local", Message{
		To:             "ada@example.com",
		Subject:        "Your ticket",
		Body:           "hello",
		Attachment:     []byte{0x89, 'P', 'N', 'G'},
		AttachmentName: "TKT-X.png",
	})
	for _, want := range []string{"multipart/mixed", "Content-Transfer-Encoding: base64", `filename="TKT-X.png"`} {
		if !bytes.Contains(mixed, []byte(want)) {
			t.Errorf("multipart message missing %q", want)
		}
	}
}
