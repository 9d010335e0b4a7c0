package dispatch

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification/alerts"
	"notification-dispatch/internal/notification/deliverylog"
	"notification-dispatch/internal/notification/preferences"
	"notification-dispatch/internal/notification/render"
	"notification-dispatch/internal/notification/sender"
	"notification-dispatch/internal/notification/template"
	"notification-dispatch/internal/notification/transport"
)

// ---------- test doubles ----------

type stubTransport struct {
	name string
	send func(ctx context.Context, msg models.ResolvedMessage) transport.Outcome

	mu   sync.Mutex
	sent []models.ResolvedMessage
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Send(ctx context.Context, msg models.ResolvedMessage) transport.Outcome {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return s.send(ctx, msg)
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *stubTransport) last() models.ResolvedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type verifyingTransport struct {
	*stubTransport
	verifyErr error
	verified  atomic.Int32
}

func (v *verifyingTransport) Verify(context.Context) error {
	v.verified.Add(1)
	return v.verifyErr
}

func succeeding(name, messageID string) *stubTransport {
	return &stubTransport{name: name, send: func(context.Context, models.ResolvedMessage) transport.Outcome {
		return transport.Sent(messageID)
	}}
}

func failing(name, reason string) *stubTransport {
	return &stubTransport{name: name, send: func(context.Context, models.ResolvedMessage) transport.Outcome {
		return transport.Failure(stderrors.New(reason))
	}}
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, models.DeliveryLogEntry) error {
	return &deliverylog.SinkError{Sink: "postgres", Err: stderrors.New("connection refused")}
}

// hangingStore and hangingRecorder block until their context ends.
type hangingStore struct{}

func (hangingStore) GetTemplate(ctx context.Context, _ string) (*models.Template, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type hangingRecorder struct{}

func (hangingRecorder) Record(ctx context.Context, _ models.DeliveryLogEntry) error {
	<-ctx.Done()
	return &deliverylog.SinkError{Sink: "postgres", Err: ctx.Err()}
}

type captureReporter struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (c *captureReporter) Report(_ context.Context, a alerts.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

// ---------- fixtures ----------

var created = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func fixtureTemplates() *template.MemoryStore {
	return template.NewMemoryStore(
		models.Template{
			ID: "1", Name: "login_success", IsActive: true, CreatedAt: created,
			Content: map[string]models.TemplateContent{
				"ar": {
					Subject: "تسجيل دخول ناجح",
					Text:    "مرحباً {{userName}}، تم تسجيل دخولك يوم {{timestampWeekday}} {{timestampDate}}",
					HTML:    "<p>مرحباً {{userName}}</p>",
				},
				"en": {
					Subject: "Successful sign-in",
					Text:    "Hello {{userName}}, you signed in on {{timestampDate}}",
				},
			},
		},
		models.Template{
			ID: "10", Name: "welcome_email", IsActive: true, CreatedAt: created,
			Content: map[string]models.TemplateContent{
				"en": {Subject: "Welcome (old)", Text: "old body"},
			},
		},
		models.Template{
			ID: "11", Name: "welcome_email", IsActive: true, CreatedAt: created.Add(time.Hour),
			Content: map[string]models.TemplateContent{
				"en": {Subject: "Welcome {{userName}}", Text: "new body"},
			},
		},
		models.Template{
			ID: "20", Name: "verification_code", IsActive: true, CreatedAt: created,
			Content: map[string]models.TemplateContent{
				"ar": {Subject: "رمز التحقق"},
				"en": {Subject: "Your code", Text: "Code: {{code}}"},
			},
		},
		models.Template{
			ID: "30", Name: "like_notification", IsActive: true, CreatedAt: created,
			Content: map[string]models.TemplateContent{
				"ar": {Subject: "إعجاب جديد", Text: "{{senderName}} أعجب بملفك"},
			},
		},
		models.Template{
			ID: "40", Name: "broken", IsActive: true, CreatedAt: created,
			Content: map[string]models.TemplateContent{
				"ar": {Text: "no subject"},
			},
		},
	)
}

func fixtureSenders() *sender.Resolver {
	return sender.NewResolver(config.NotificationConfig{
		PlatformName:       "Platform",
		PlatformNameAr:     "المنصة",
		DefaultFromAddress: "no-reply@platform.example",
		Senders: map[string]map[string]config.SenderEntry{
			"login_success": {
				"ar": {DisplayName: "المنصة | الأمان", Address: "security@platform.example"},
			},
		},
	})
}

type harness struct {
	d      *Dispatcher
	log    *deliverylog.MemoryRecorder
	alerts *captureReporter
}

type option func(*Deps, *Options)

func withRecorder(r deliverylog.Recorder) option {
	return func(d *Deps, _ *Options) { d.Log = r }
}

func withPreferences(p preferences.Store) option {
	return func(d *Deps, _ *Options) { d.Preferences = p }
}

func withTemplates(s template.Store) option {
	return func(d *Deps, _ *Options) { d.Templates = s }
}

func withLanguageFallback() option {
	return func(_ *Deps, o *Options) { o.LanguageFallback = true }
}

func withStoreTimeouts(store, log time.Duration) option {
	return func(_ *Deps, o *Options) { o.StoreTimeout, o.LogTimeout = store, log }
}

func newHarness(t *testing.T, transports []transport.Transport, opts ...option) *harness {
	t.Helper()

	tiers := make([]transport.Tier, len(transports))
	for i, tr := range transports {
		tiers[i] = transport.Tier{Number: i + 1, Transport: tr, Timeout: time.Second}
	}

	h := &harness{log: deliverylog.NewMemoryRecorder(), alerts: &captureReporter{}}
	deps := Deps{
		Templates: fixtureTemplates(),
		Renderer:  render.New(render.Options{TimestampVariables: []string{"timestamp"}}),
		Senders:   fixtureSenders(),
		Tiers:     tiers,
		Log:       h.log,
		Alerts:    h.alerts,
		Logger:    logger.NewTestLogger(t),
	}
	dopts := Options{
		DefaultLanguage:    "ar",
		SupportedLanguages: []string{"ar", "en"},
		TypeTemplates:      map[string]string{"like": "like_notification"},
	}
	for _, o := range opts {
		o(&deps, &dopts)
	}

	d, err := New(deps, dopts)
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *harness) onlyEntry(t *testing.T) models.DeliveryLogEntry {
	t.Helper()
	entries := h.log.Entries()
	require.Len(t, entries, 1, "every dispatch writes exactly one log entry")
	return entries[0]
}

// ---------- scenarios ----------

func TestSendNotification_LoginSuccessArabicTier1(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	tier2 := succeeding("legacy-relay", "relay-2")
	tier3 := succeeding("ses", "ses-1")
	h := newHarness(t, []transport.Transport{tier1, tier2, tier3})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:     "login_success",
		RecipientEmail:   "user@example.com",
		Language:         "ar",
		NotificationType: "login_success",
		Variables: map[string]interface{}{
			"userName":  "أحمد",
			"timestamp": "2025-01-21T10:00:00Z",
		},
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Tier)
	assert.Equal(t, "relay-1", result.ProviderMessageID)
	assert.Equal(t, 0, tier2.calls())
	assert.Equal(t, 0, tier3.calls())

	msg := tier1.last()
	assert.Equal(t, "تسجيل دخول ناجح", msg.Subject)
	assert.Contains(t, msg.Text, "أحمد")
	assert.Contains(t, msg.Text, "21 يناير 2025")
	assert.Contains(t, msg.Text, "الثلاثاء")
	assert.NotContains(t, msg.Text, "{{")
	assert.Equal(t, "المنصة | الأمان", msg.From.DisplayName)
	assert.Equal(t, "security@platform.example", msg.From.EmailAddress)

	entry := h.onlyEntry(t)
	assert.Equal(t, models.DeliveryStatusSent, entry.Status)
	assert.Equal(t, 1, entry.TransportTier)
	assert.Equal(t, "login_success", entry.TemplateName)
	assert.Equal(t, "user@example.com", entry.Recipient)
	assert.Nil(t, entry.ErrorMessage)
	require.NotNil(t, entry.ProviderMessageID)
	assert.Equal(t, "relay-1", *entry.ProviderMessageID)
	assert.Equal(t, entry.ID, result.LogID)
}

func TestSendNotification_UnknownTemplate(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "does_not_exist",
		RecipientEmail: "user@example.com",
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonTemplateNotFound, result.Error)
	assert.Equal(t, 0, tier1.calls())

	entry := h.onlyEntry(t)
	assert.Equal(t, models.DeliveryStatusFailed, entry.Status)
	assert.Equal(t, 0, entry.TransportTier)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "TemplateNotFound: no active template named does_not_exist", *entry.ErrorMessage)
}

func TestSendNotification_FallsThroughToTier3(t *testing.T) {
	tier1 := failing("dynamic-relay", "relay status 503")
	tier2 := failing("legacy-relay", "relay status 502")
	tier3 := succeeding("ses", "ses-123")
	h := newHarness(t, []transport.Transport{tier1, tier2, tier3})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
		Language:       "en",
	})

	require.True(t, result.Success)
	assert.Equal(t, 3, result.Tier)
	assert.Equal(t, "ses", result.Transport)
	assert.Equal(t, 1, tier1.calls())
	assert.Equal(t, 1, tier2.calls())
	assert.Equal(t, 1, tier3.calls())

	entry := h.onlyEntry(t)
	assert.Equal(t, models.DeliveryStatusSent, entry.Status)
	assert.Equal(t, 3, entry.TransportTier)
	assert.Equal(t, "ses", entry.TransportName)
}

func TestSendNotification_DuplicateTemplateUsesLatest(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "welcome_email",
		RecipientEmail: "new@example.com",
		Language:       "en",
		Variables:      map[string]interface{}{"userName": "Sara"},
	})

	require.True(t, result.Success)
	assert.Equal(t, "Welcome Sara", tier1.last().Subject)
	assert.Equal(t, "new body", tier1.last().Text)
	h.onlyEntry(t)
}

func TestSendNotification_AllTiersExhausted(t *testing.T) {
	h := newHarness(t, []transport.Transport{
		failing("dynamic-relay", "connection refused"),
		failing("legacy-relay", "relay status 500"),
		failing("ses", "throttled"),
	})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonAllTiersExhausted, result.Error)
	assert.Equal(t, "tier 3 (ses): throttled", result.Detail)

	assert.Equal(t, 0, result.Tier)

	entry := h.onlyEntry(t)
	assert.Equal(t, models.DeliveryStatusFailed, entry.Status)
	assert.Equal(t, 3, entry.TransportTier)
	assert.Equal(t, "ses", entry.TransportName)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "throttled")
}

// ---------- tier behaviour ----------

func TestSendNotification_HandshakeFailureStillSends(t *testing.T) {
	tier1 := &verifyingTransport{
		stubTransport: succeeding("dynamic-relay", "relay-1"),
		verifyErr:     stderrors.New("EHLO rejected"),
	}
	tier2 := succeeding("legacy-relay", "relay-2")
	h := newHarness(t, []transport.Transport{tier1, tier2})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Tier)
	assert.Equal(t, int32(1), tier1.verified.Load())
	assert.Equal(t, 1, tier1.calls())
	assert.Equal(t, 0, tier2.calls())
}

func TestSendNotification_PanickingTierIsAFailure(t *testing.T) {
	tier1 := &stubTransport{name: "dynamic-relay", send: func(context.Context, models.ResolvedMessage) transport.Outcome {
		panic("nil map write")
	}}
	tier2 := succeeding("legacy-relay", "relay-2")
	h := newHarness(t, []transport.Transport{tier1, tier2})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	require.True(t, result.Success)
	assert.Equal(t, 2, result.Tier)
	h.onlyEntry(t)
}

func TestSendNotification_TierTimeoutFallsThrough(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	stuck := &stubTransport{name: "dynamic-relay", send: func(context.Context, models.ResolvedMessage) transport.Outcome {
		<-block
		return transport.Sent("too-late")
	}}
	tier2 := succeeding("legacy-relay", "relay-2")
	h := newHarness(t, []transport.Transport{stuck, tier2})
	h.d.tiers[0].Timeout = 50 * time.Millisecond

	start := time.Now()
	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	require.True(t, result.Success)
	assert.Equal(t, 2, result.Tier)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSendNotification_CallerCancellationDoesNotStopTiers(t *testing.T) {
	tier1 := &stubTransport{name: "dynamic-relay", send: func(ctx context.Context, _ models.ResolvedMessage) transport.Outcome {
		if err := ctx.Err(); err != nil {
			return transport.Failure(err)
		}
		return transport.Sent("relay-1")
	}}
	h := newHarness(t, []transport.Transport{tier1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.d.SendNotification(ctx, models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Tier)
	h.onlyEntry(t)
}

// ---------- request handling ----------

func TestSendNotification_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  models.NotificationRequest
		want string
	}{
		{
			name: "bad address",
			req:  models.NotificationRequest{TemplateName: "login_success", RecipientEmail: "not-an-email"},
			want: "recipientEmail is not a valid address",
		},
		{
			name: "no template or type",
			req:  models.NotificationRequest{RecipientEmail: "user@example.com"},
			want: "templateName or notificationType is required",
		},
		{
			name: "type without a template mapping",
			req:  models.NotificationRequest{RecipientEmail: "user@example.com", NotificationType: "unknown"},
			want: `no template configured for notification type "unknown"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier1 := succeeding("dynamic-relay", "relay-1")
			h := newHarness(t, []transport.Transport{tier1})

			result := h.d.SendNotification(context.Background(), tt.req)

			assert.False(t, result.Success)
			assert.Equal(t, models.ReasonInvalidRequest, result.Error)
			assert.Contains(t, result.Detail, tt.want)
			assert.Equal(t, 0, tier1.calls())
			assert.Equal(t, models.DeliveryStatusFailed, h.onlyEntry(t).Status)
		})
	}
}

func TestSendNotification_TemplateFromNotificationType(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		RecipientEmail:   "user@example.com",
		NotificationType: "like",
		Variables:        map[string]interface{}{"senderName": "مريم"},
	})

	require.True(t, result.Success)
	assert.Equal(t, "مريم أعجب بملفك", tier1.last().Text)
	assert.Equal(t, "like_notification", h.onlyEntry(t).TemplateName)
}

func TestSendNotification_Language(t *testing.T) {
	tests := []struct {
		name      string
		language  string
		prefs     preferences.Store
		wantLang  string
		wantFrom  string
		wantTitle string
	}{
		{
			name:      "stored preference when request has none",
			prefs:     preferences.Static{"user@example.com": "en"},
			wantLang:  "en",
			wantFrom:  "Platform | Islamic Marriage Platform",
			wantTitle: "Successful sign-in",
		},
		{
			name:      "default when no preference is stored",
			prefs:     preferences.Static{},
			wantLang:  "ar",
			wantFrom:  "المنصة | الأمان",
			wantTitle: "تسجيل دخول ناجح",
		},
		{
			name:      "unsupported language normalises to default",
			language:  "fr",
			wantLang:  "ar",
			wantFrom:  "المنصة | الأمان",
			wantTitle: "تسجيل دخول ناجح",
		},
		{
			name:      "explicit language wins over preference",
			language:  "EN",
			prefs:     preferences.Static{"user@example.com": "ar"},
			wantLang:  "en",
			wantFrom:  "Platform | Islamic Marriage Platform",
			wantTitle: "Successful sign-in",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier1 := succeeding("dynamic-relay", "relay-1")
			var opts []option
			if tt.prefs != nil {
				opts = append(opts, withPreferences(tt.prefs))
			}
			h := newHarness(t, []transport.Transport{tier1}, opts...)

			result := h.d.SendNotification(context.Background(), models.NotificationRequest{
				TemplateName:     "login_success",
				RecipientEmail:   "user@example.com",
				Language:         tt.language,
				NotificationType: "login_success",
			})

			require.True(t, result.Success)
			msg := tier1.last()
			assert.Equal(t, tt.wantLang, msg.Language)
			assert.Equal(t, tt.wantFrom, msg.From.DisplayName)
			assert.Equal(t, tt.wantTitle, msg.Subject)
			assert.Equal(t, tt.wantLang, h.onlyEntry(t).Language)
		})
	}
}

func TestSendNotification_IncompleteLanguageIsMalformed(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "verification_code",
		RecipientEmail: "user@example.com",
		Language:       "ar",
		Variables:      map[string]interface{}{"code": 482913},
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonTemplateNotFound, result.Error)
	assert.Contains(t, result.Detail, "malformed")
	assert.Equal(t, 0, tier1.calls())

	entry := h.onlyEntry(t)
	assert.Equal(t, "ar", entry.Language)
	assert.Equal(t, 0, entry.TransportTier)
}

func TestSendNotification_FallsBackToCompleteLanguage(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1}, withLanguageFallback())

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "verification_code",
		RecipientEmail: "user@example.com",
		Language:       "ar",
		Variables:      map[string]interface{}{"code": 482913},
	})

	require.True(t, result.Success)
	assert.Equal(t, "en", tier1.last().Language)
	assert.Equal(t, "Code: 482913", tier1.last().Text)
	assert.Equal(t, "en", h.onlyEntry(t).Language)
}

func TestSendNotification_MalformedTemplate(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "broken",
		RecipientEmail: "user@example.com",
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonTemplateNotFound, result.Error)
	assert.Contains(t, result.Detail, "malformed")
	assert.Equal(t, 0, tier1.calls())
	h.onlyEntry(t)
}

func TestSendNotification_ResendIsNotDeduplicated(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})
	req := models.NotificationRequest{TemplateName: "login_success", RecipientEmail: "user@example.com"}

	first := h.d.SendNotification(context.Background(), req)
	second := h.d.SendNotification(context.Background(), req)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, 2, tier1.calls())

	entries := h.log.Entries()
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

// ---------- delivery log failures ----------

func TestSendNotification_LogFailureDoesNotChangeOutcome(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1}, withRecorder(failingRecorder{}))

	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Tier)
	assert.Empty(t, result.LogID)

	h.alerts.mu.Lock()
	defer h.alerts.mu.Unlock()
	require.Len(t, h.alerts.alerts, 1)
	alert := h.alerts.alerts[0]
	assert.Equal(t, alerts.KindLogWriteFailure, alert.Kind)
	assert.Contains(t, alert.Message, "postgres")
	assert.Equal(t, "user@example.com", alert.Fields["recipient"])
}

func TestSendNotification_SlowLogWriteIsBounded(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1},
		withRecorder(hangingRecorder{}), withStoreTimeouts(time.Second, 50*time.Millisecond))

	start := time.Now()
	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Tier)
	assert.Empty(t, result.LogID)

	h.alerts.mu.Lock()
	defer h.alerts.mu.Unlock()
	require.Len(t, h.alerts.alerts, 1)
	assert.Equal(t, alerts.KindLogWriteFailure, h.alerts.alerts[0].Kind)
}

func TestSendNotification_SlowTemplateStoreIsBounded(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1},
		withTemplates(hangingStore{}), withStoreTimeouts(50*time.Millisecond, time.Second))

	start := time.Now()
	result := h.d.SendNotification(context.Background(), models.NotificationRequest{
		TemplateName:   "login_success",
		RecipientEmail: "user@example.com",
	})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonTemplateNotFound, result.Error)
	assert.Contains(t, result.Detail, "could not be read")
	assert.Equal(t, 0, tier1.calls())
	h.onlyEntry(t)
}

// ---------- construction and batch ----------

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{
		Templates: fixtureTemplates(),
		Senders:   fixtureSenders(),
		Log:       deliverylog.NewMemoryRecorder(),
	}, Options{})
	assert.ErrorContains(t, err, "at least one transport tier")
}

func TestSendBatch_IsolatesRecipients(t *testing.T) {
	tier1 := succeeding("dynamic-relay", "relay-1")
	h := newHarness(t, []transport.Transport{tier1})

	reqs := []models.NotificationRequest{
		{TemplateName: "login_success", RecipientEmail: "a@example.com"},
		{TemplateName: "login_success", RecipientEmail: "broken-address"},
		{TemplateName: "welcome_email", RecipientEmail: "c@example.com", Language: "en"},
		{TemplateName: "missing", RecipientEmail: "d@example.com"},
	}

	results := h.d.SendBatch(context.Background(), reqs, 2)

	require.Len(t, results, 4)
	assert.True(t, results[0].Success)
	assert.Equal(t, models.ReasonInvalidRequest, results[1].Error)
	assert.True(t, results[2].Success)
	assert.Equal(t, models.ReasonTemplateNotFound, results[3].Error)
	assert.Equal(t, 2, CountFailed(results))
	assert.Len(t, h.log.Entries(), 4)
	assert.Equal(t, 2, tier1.calls())
}

func TestResultError(t *testing.T) {
	assert.NoError(t, ResultError(models.Delivered(1, "dynamic-relay", "m")))

	err := ResultError(models.Failed(models.ReasonTemplateNotFound, "no active template named x"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeTemplateNotFound))

	err = ResultError(models.Failed(models.ReasonInvalidRequest, "bad"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))

	err = ResultError(models.Failed(models.ReasonAllTiersExhausted, "tier 3 (ses): throttled"))
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeAllTiersExhausted, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}
