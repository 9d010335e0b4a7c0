package transport

import (
	"fmt"
	"time"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
)

// Tier is one position in the fallback chain. Number is 1-based.
type Tier struct {
	Number    int
	Transport Transport
	Timeout   time.Duration
}

// Clients supplies the SDK-backed collaborators a tier list may need.
type Clients struct {
	SES    SESAPI
	Mailer Mailer
}

// BuildTiers turns the configured tier list into transports, in order.
func BuildTiers(cfg *config.Config, clients Clients, log logger.Logger) ([]Tier, error) {
	tiers := make([]Tier, 0, len(cfg.Transports.Tiers))

	for i, tc := range cfg.Transports.Tiers {
		var t Transport
		switch tc.Kind {
		case config.TransportKindDynamicRelay, config.TransportKindLegacyRelay:
			t = NewRelayTransport(tc, log)
		case config.TransportKindSES:
			if clients.SES == nil {
				return nil, fmt.Errorf("tier %d (%s): ses client not configured", i+1, tc.Name)
			}
			t = NewSESTransport(tc.Name, clients.SES,
				cfg.Integrations.AWS.SES.ConfigurationSet,
				firstNonEmpty(cfg.Integrations.AWS.SES.FromEmail, cfg.Notifications.DefaultFromAddress))
		case config.TransportKindSMTP:
			if clients.Mailer == nil {
				return nil, fmt.Errorf("tier %d (%s): smtp mailer not configured", i+1, tc.Name)
			}
			t = NewSMTPTransport(tc.Name, clients.Mailer)
		default:
			return nil, fmt.Errorf("tier %d (%s): unsupported kind %q", i+1, tc.Name, tc.Kind)
		}

		timeout := config.GetDuration(tc.Timeout)
		if timeout <= 0 {
			timeout = config.GetDuration(cfg.Transports.DefaultTimeout)
		}
		tiers = append(tiers, Tier{Number: i + 1, Transport: t, Timeout: timeout})
	}
	return tiers, nil
}

// NeedsKind reports whether any configured tier uses kind.
func NeedsKind(cfg *config.Config, kind string) bool {
	for _, tc := range cfg.Transports.Tiers {
		if tc.Kind == kind {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
