package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"

	"github.com/maclarenscott/ticket-nova/internal/observability"
)

// Message is one outbound notification. Attachment is optional.
type Message struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// EmailSender delivers notifications. Implementations must be safe for
// concurrent use.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through a plain SMTP relay. There is no queueing
// here; retry policy belongs to the consumer.
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(addr, from string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	return smtp.SendMail(s.addr, nil, s.from, []string{msg.To}, buildMIME(s.from, msg))
}

const mimeBoundary = "tn-mime-boundary"

func buildMIME(from string, msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachment) == 0 {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.Body)
	fmt.Fprintf(&buf, "\r\n--%s\r\n", mimeBoundary)
	fmt.Fprintf(&buf, "Content-Type: image/png; name=%q\r\n", msg.AttachmentName)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", msg.AttachmentName)
	buf.WriteString(base64.StdEncoding.EncodeToString(msg.Attachment))
	fmt.Fprintf(&buf, "\r\n--%s--\r\n", mimeBoundary)
	return buf.Bytes()
}

// LogSender is the fallback when no SMTP relay is configured.
type LogSender struct {
	logger observability.Logger
}

func NewLogSender(logger observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.
		WithField("to", msg.To).
		WithField("subject", msg.Subject).
		WithField("attachment_bytes", len(msg.Attachment)).
		Info("email suppressed, no SMTP relay configured")
	return nil
}
