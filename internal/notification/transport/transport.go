// Package transport holds the delivery tiers behind one Send contract.
package transport

import (
	"context"
	"errors"

	"notification-dispatch/internal/models"
)

// Outcome is a single tier's result. Err is set exactly when Success is false.
type Outcome struct {
	Success           bool
	ProviderMessageID string
	Err               error
}

func Sent(messageID string) Outcome {
	return Outcome{Success: true, ProviderMessageID: messageID}
}

func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("transport reported failure without a reason")
	}
	return Outcome{Err: err}
}

// Transport delivers a rendered message through one mechanism.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg models.ResolvedMessage) Outcome
}

// Verifier is implemented by transports with a cheap connection handshake.
// A failed Verify is advisory; the caller still attempts Send.
type Verifier interface {
	Verify(ctx context.Context) error
}

// RelayAddress, RelayMessage and RelayResponse are the relay wire format.
type RelayAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type RelayMessage struct {
	To      string       `json:"to"`
	Subject string       `json:"subject"`
	HTML    string       `json:"html"`
	Text    string       `json:"text"`
	From    RelayAddress `json:"from"`

	// Set only by the language-aware shape.
	ReplyTo      string `json:"replyTo,omitempty"`
	Language     string `json:"language,omitempty"`
	TemplateName string `json:"templateName,omitempty"`
}

type RelayResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}
