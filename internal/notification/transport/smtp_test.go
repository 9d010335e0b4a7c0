package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
	commonmail "notification-dispatch/internal/common/mail"
)

type captureMailer struct {
	sent      []commonmail.Envelope
	sendErr   error
	verifyErr error
}

func (c *captureMailer) Send(_ context.Context, env commonmail.Envelope) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, env)
	return "<m-1@smtp>", nil
}

func (c *captureMailer) Verify(context.Context) error { return c.verifyErr }

func TestSMTPTransport(t *testing.T) {
	m := &captureMailer{}
	tr := NewSMTPTransport("smtp", m)

	out := tr.Send(context.Background(), sampleMessage())
	require.True(t, out.Success)
	assert.Equal(t, "<m-1@smtp>", out.ProviderMessageID)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "security@platform.example", m.sent[0].From.Address)
	assert.Equal(t, "support@platform.example", m.sent[0].ReplyTo)

	m.sendErr = errors.New("550 mailbox unavailable")
	out = tr.Send(context.Background(), sampleMessage())
	assert.False(t, out.Success)
	assert.ErrorContains(t, out.Err, "smtp send")
}

func TestBuildTiers(t *testing.T) {
	cfg := &config.Config{}
	cfg.Transports.DefaultTimeout = 3000
	cfg.Transports.Tiers = []config.TierConfig{
		{Name: "dynamic", Kind: config.TransportKindDynamicRelay, URL: "http://relay-a/send"},
		{Name: "legacy", Kind: config.TransportKindLegacyRelay, URL: "http://relay-b/send", Timeout: 1500},
		{Name: "ses", Kind: config.TransportKindSES},
		{Name: "smtp", Kind: config.TransportKindSMTP},
	}

	tiers, err := BuildTiers(cfg, Clients{SES: &MockSESService{}, Mailer: &captureMailer{}}, logger.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, tiers, 4)

	assert.Equal(t, 1, tiers[0].Number)
	assert.Equal(t, "dynamic", tiers[0].Transport.Name())
	assert.Equal(t, config.GetDuration(3000), tiers[0].Timeout)
	assert.Equal(t, config.GetDuration(1500), tiers[1].Timeout)
	assert.IsType(t, &SESTransport{}, tiers[2].Transport)
	assert.IsType(t, &SMTPTransport{}, tiers[3].Transport)

	assert.True(t, NeedsKind(cfg, config.TransportKindSES))

	_, err = BuildTiers(cfg, Clients{}, logger.NewTestLogger(t))
	assert.ErrorContains(t, err, "ses client not configured")
}
