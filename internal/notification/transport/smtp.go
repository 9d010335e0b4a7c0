package transport

import (
	"context"
	"fmt"
	"net/mail"

	commonmail "notification-dispatch/internal/common/mail"
	"notification-dispatch/internal/models"
)

// Mailer is satisfied by *mail.Mailer.
type Mailer interface {
	Send(ctx context.Context, env commonmail.Envelope) (string, error)
	Verify(ctx context.Context) error
}

// SMTPTransport talks to an SMTP server directly, with no relay in between.
type SMTPTransport struct {
	name   string
	mailer Mailer
}

var (
	_ Transport = (*SMTPTransport)(nil)
	_ Verifier  = (*SMTPTransport)(nil)
)

func NewSMTPTransport(name string, mailer Mailer) *SMTPTransport {
	return &SMTPTransport{name: name, mailer: mailer}
}

func (t *SMTPTransport) Name() string { return t.name }

func (t *SMTPTransport) Verify(ctx context.Context) error {
	return t.mailer.Verify(ctx)
}

func (t *SMTPTransport) Send(ctx context.Context, msg models.ResolvedMessage) Outcome {
	id, err := t.mailer.Send(ctx, commonmail.Envelope{
		From:    mail.Address{Name: msg.From.DisplayName, Address: msg.From.EmailAddress},
		To:      msg.To,
		ReplyTo: msg.From.ReplyTo,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return Failure(fmt.Errorf("smtp send: %w", err))
	}
	return Sent(id)
}
