package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is one outbound alert email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer is the external mail collaborator. The engine records its outcome
// but never retries; retry policy belongs to the transport side.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(m.Addr) == "" {
		return fmt.Errorf("smtp relay not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := strings.Join([]string{
		"From: " + m.From,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"",
		msg.Body,
	}, "\r\n")
	return smtp.SendMail(m.Addr, nil, m.From, []string{msg.To}, []byte(payload))
}

// noopMailer is used when no relay is configured: deliveries are recorded as
// failed so misconfiguration stays visible through delivery attempts.
type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, msg Message) error {
	return fmt.Errorf("smtp relay not configured")
}
