package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"

	"notification-dispatch/internal/common/config"
	commonhttp "notification-dispatch/internal/common/http"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

const maxRelayErrorLen = 200

// RelayTransport posts the JSON wire format to an HTTP relay. The dynamic
// shape carries language and template name; the legacy shape does not.
type RelayTransport struct {
	name      string
	dynamic   bool
	url       string
	healthURL string
	apiKey    string
	client    *retryablehttp.Client
	breaker   *gobreaker.CircuitBreaker
	logger    logger.Logger
}

var (
	_ Transport = (*RelayTransport)(nil)
	_ Verifier  = (*RelayTransport)(nil)
)

func NewRelayTransport(tier config.TierConfig, log logger.Logger) *RelayTransport {
	log = log.WithFields(map[string]interface{}{"transport": tier.Name})

	t := &RelayTransport{
		name:      tier.Name,
		dynamic:   tier.Kind == config.TransportKindDynamicRelay,
		url:       tier.URL,
		healthURL: tier.HealthURL,
		apiKey:    tier.APIKey,
		client: commonhttp.NewClient(commonhttp.ClientOptions{
			Timeout:    config.GetDuration(tier.Timeout),
			MaxRetries: tier.MaxRetries,
			Logger:     log,
		}),
		logger: log,
	}
	if tier.Breaker.Enabled {
		t.breaker = newBreaker(tier.Name, tier.Breaker, log)
	}
	return t
}

func newBreaker(name string, cfg config.BreakerConfig, log logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    config.GetDuration(cfg.Interval),
		Timeout:     config.GetDuration(cfg.Timeout),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("relay breaker state changed", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
}

func (t *RelayTransport) Name() string { return t.name }

// Verify probes the relay's health endpoint once, without retries.
func (t *RelayTransport) Verify(ctx context.Context) error {
	if t.healthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.healthURL, nil)
	if err != nil {
		return err
	}
	t.authorize(req.Header)

	resp, err := t.client.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay health check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay health check: status %d", resp.StatusCode)
	}
	return nil
}

func (t *RelayTransport) Send(ctx context.Context, msg models.ResolvedMessage) Outcome {
	if t.breaker == nil {
		resp, err := t.post(ctx, msg)
		if err != nil {
			return Failure(err)
		}
		return Sent(resp.MessageID)
	}

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return t.post(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Failure(fmt.Errorf("relay %s unavailable: %w", t.name, err))
		}
		return Failure(err)
	}
	return Sent(result.(*RelayResponse).MessageID)
}

func (t *RelayTransport) body(msg models.ResolvedMessage) RelayMessage {
	body := RelayMessage{
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		From:    RelayAddress{Name: msg.From.DisplayName, Address: msg.From.EmailAddress},
	}
	if t.dynamic {
		body.ReplyTo = msg.From.ReplyTo
		body.Language = msg.Language
		body.TemplateName = msg.Template
	}
	return body
}

func (t *RelayTransport) post(ctx context.Context, msg models.ResolvedMessage) (*RelayResponse, error) {
	payload, err := json.Marshal(t.body(msg))
	if err != nil {
		return nil, fmt.Errorf("encode relay message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req.Header)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	var out RelayResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out)

	t.logger.Debug("relay responded", map[string]interface{}{
		"status":     resp.StatusCode,
		"durationMs": time.Since(start).Milliseconds(),
	})

	switch {
	case resp.StatusCode >= 300 && out.Error != "":
		return nil, fmt.Errorf("relay status %d: %s", resp.StatusCode, truncate(out.Error))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("relay status %d", resp.StatusCode)
	case decodeErr != nil:
		return nil, fmt.Errorf("relay response unreadable: %w", decodeErr)
	case !out.Success:
		reason := out.Error
		if reason == "" {
			reason = "relay reported failure"
		}
		return nil, errors.New(truncate(reason))
	}
	return &out, nil
}

func (t *RelayTransport) authorize(h http.Header) {
	if t.apiKey != "" {
		h.Set("X-API-Key", t.apiKey)
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxRelayErrorLen {
		return s
	}
	cut := maxRelayErrorLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
