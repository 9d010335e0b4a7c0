package transport

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"notification-dispatch/internal/models"
)

const charsetUTF8 = "UTF-8"

// SESAPI is the subset of the SES client the transport needs.
type SESAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type quotaChecker interface {
	GetSendQuota(ctx context.Context) error
}

// SESTransport is the last-resort channel through Amazon SES.
type SESTransport struct {
	name             string
	client           SESAPI
	configurationSet string
	fallbackFrom     string
}

var (
	_ Transport = (*SESTransport)(nil)
	_ Verifier  = (*SESTransport)(nil)
)

// NewSESTransport uses fallbackFrom when a message carries no sender address,
// since SES rejects an empty Source.
func NewSESTransport(name string, client SESAPI, configurationSet, fallbackFrom string) *SESTransport {
	return &SESTransport{
		name:             name,
		client:           client,
		configurationSet: configurationSet,
		fallbackFrom:     fallbackFrom,
	}
}

func (t *SESTransport) Name() string { return t.name }

func (t *SESTransport) Verify(ctx context.Context) error {
	if qc, ok := t.client.(quotaChecker); ok {
		if err := qc.GetSendQuota(ctx); err != nil {
			return fmt.Errorf("ses quota check: %w", err)
		}
	}
	return nil
}

func (t *SESTransport) Send(ctx context.Context, msg models.ResolvedMessage) Outcome {
	address := msg.From.EmailAddress
	if address == "" {
		address = t.fallbackFrom
	}
	source := (&mail.Address{Name: msg.From.DisplayName, Address: address}).String()

	body := &types.Body{}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String(charsetUTF8)}
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String(charsetUTF8)}
	}

	input := &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
			Body:    body,
		},
		Source: aws.String(source),
	}
	if msg.From.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.From.ReplyTo}
	}
	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return Failure(fmt.Errorf("ses send: %w", err))
	}
	return Sent(aws.ToString(out.MessageId))
}
