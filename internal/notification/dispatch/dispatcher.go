// Package dispatch is the single entry point every caller uses to send a
// notification email. It resolves the template, renders it, walks the
// transport tiers in order and writes exactly one delivery log entry.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification/alerts"
	"notification-dispatch/internal/notification/deliverylog"
	"notification-dispatch/internal/notification/preferences"
	"notification-dispatch/internal/notification/render"
	"notification-dispatch/internal/notification/template"
	"notification-dispatch/internal/notification/transport"
)

const (
	// DefaultTierTimeout bounds a tier that was built without a timeout.
	DefaultTierTimeout = 3 * time.Second
	// DefaultStoreTimeout bounds template and preference lookups.
	DefaultStoreTimeout = 5 * time.Second
	// DefaultLogTimeout bounds the delivery log write and the alert after it.
	DefaultLogTimeout = 5 * time.Second
)

// SenderResolver is satisfied by sender.Resolver.
type SenderResolver interface {
	Resolve(notificationType, language string) models.SenderIdentity
}

// Options are the dispatch rules taken from the notifications config block.
type Options struct {
	DefaultLanguage    string
	SupportedLanguages []string
	TypeTemplates      map[string]string
	BatchConcurrency   int
	// LanguageFallback lets a template whose requested language is
	// incomplete be sent in another supported language. Off by default:
	// the dispatch then fails as a malformed template.
	LanguageFallback bool
	StoreTimeout     time.Duration
	LogTimeout       time.Duration
}

func OptionsFromConfig(cfg config.NotificationConfig) Options {
	return Options{
		DefaultLanguage:    cfg.DefaultLanguage,
		SupportedLanguages: cfg.SupportedLanguages,
		TypeTemplates:      cfg.TypeTemplates,
		BatchConcurrency:   cfg.BatchConcurrency,
		LanguageFallback:   cfg.LanguageFallback,
		StoreTimeout:       config.GetDuration(cfg.StoreTimeout),
		LogTimeout:         config.GetDuration(cfg.DeliveryLog.WriteTimeout),
	}
}

// Deps are the collaborators of a Dispatcher. Preferences, Alerts and
// Observability are optional.
type Deps struct {
	Templates     template.Store
	Renderer      *render.Renderer
	Senders       SenderResolver
	Tiers         []transport.Tier
	Log           deliverylog.Recorder
	Preferences   preferences.Store
	Alerts        alerts.Reporter
	Observability *observability.Observability
	Logger        logger.Logger
}

type Dispatcher struct {
	templates template.Store
	renderer  *render.Renderer
	senders   SenderResolver
	tiers     []transport.Tier
	log       deliverylog.Recorder
	prefs     preferences.Store
	alerts    alerts.Reporter
	obs       *observability.Observability
	logger    logger.Logger
	tracer    trace.Tracer
	opts      Options
	supported map[string]bool

	now   func() time.Time
	newID func() string
}

func New(deps Deps, opts Options) (*Dispatcher, error) {
	switch {
	case deps.Templates == nil:
		return nil, fmt.Errorf("dispatch: template store is required")
	case deps.Senders == nil:
		return nil, fmt.Errorf("dispatch: sender resolver is required")
	case deps.Log == nil:
		return nil, fmt.Errorf("dispatch: delivery log is required")
	case len(deps.Tiers) == 0:
		return nil, fmt.Errorf("dispatch: at least one transport tier is required")
	}

	if deps.Renderer == nil {
		deps.Renderer = render.New(render.Options{})
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = models.LanguageArabic
	}
	if len(opts.SupportedLanguages) == 0 {
		opts.SupportedLanguages = []string{models.LanguageArabic, models.LanguageEnglish}
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.LogTimeout <= 0 {
		opts.LogTimeout = DefaultLogTimeout
	}

	supported := make(map[string]bool, len(opts.SupportedLanguages))
	for _, lang := range opts.SupportedLanguages {
		supported[lang] = true
	}

	return &Dispatcher{
		templates: deps.Templates,
		renderer:  deps.Renderer,
		senders:   deps.Senders,
		tiers:     deps.Tiers,
		log:       deps.Log,
		prefs:     deps.Preferences,
		alerts:    deps.Alerts,
		obs:       deps.Observability,
		logger:    deps.Logger.WithFields(map[string]interface{}{"component": "dispatcher"}),
		tracer:    deps.Observability.Tracer(),
		opts:      opts,
		supported: supported,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}, nil
}

// dispatch carries one call's state to the terminal log write.
type dispatch struct {
	req      models.NotificationRequest
	language string
	started  time.Time

	// Last tier attempted, kept for the log entry when every tier failed.
	tier      int
	transport string
}

// SendNotification always returns a terminal Result and never panics.
// Once the first tier is attempted the caller's cancellation no longer
// applies; each tier is bounded by its own timeout instead.
func (d *Dispatcher) SendNotification(ctx context.Context, req models.NotificationRequest) models.Result {
	req = d.normalize(req)
	st := &dispatch{req: req, started: d.now()}

	ctx, span := d.tracer.Start(ctx, "notification.dispatch", trace.WithAttributes(
		attribute.String("notification.template", req.TemplateName),
		attribute.String("notification.type", req.NotificationType),
	))
	defer span.End()

	result := d.run(ctx, st)

	span.SetAttributes(attribute.Bool("notification.sent", result.Success), attribute.Int("notification.tier", result.Tier))
	if !result.Success {
		span.SetStatus(codes.Error, string(result.Error))
	}
	return result
}

func (d *Dispatcher) run(ctx context.Context, st *dispatch) models.Result {
	req := st.req

	if detail := validateRequest(req); detail != "" {
		return d.finish(ctx, st, models.Failed(models.ReasonInvalidRequest, detail))
	}

	st.language = d.resolveLanguage(ctx, req)

	tpl, err := d.lookupTemplate(ctx, req.TemplateName)
	if err != nil {
		return d.finish(ctx, st, models.Failed(models.ReasonTemplateNotFound, templateDetail(req.TemplateName, err)))
	}

	rendered, usedLang, err := d.renderer.Render(tpl, st.language, req.Variables, d.fallbacks(st.language)...)
	if err != nil {
		return d.finish(ctx, st, models.Failed(models.ReasonTemplateNotFound, templateDetail(req.TemplateName, err)))
	}
	if usedLang != st.language {
		d.logger.Warn("Template content missing for language, using fallback", map[string]interface{}{
			"template":  req.TemplateName,
			"requested": st.language,
			"used":      usedLang,
		})
		st.language = usedLang
	}

	msg := models.ResolvedMessage{
		From:     d.senders.Resolve(req.NotificationType, usedLang),
		To:       req.RecipientEmail,
		Subject:  rendered.Subject,
		Text:     rendered.Text,
		HTML:     rendered.HTML,
		Language: usedLang,
		Template: req.TemplateName,
	}

	return d.finish(ctx, st, d.deliver(ctx, st, msg))
}

func (d *Dispatcher) lookupTemplate(ctx context.Context, name string) (*models.Template, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
	defer cancel()
	return d.templates.GetTemplate(ctx, name)
}

// deliver walks the tiers in order and stops at the first success.
func (d *Dispatcher) deliver(ctx context.Context, st *dispatch, msg models.ResolvedMessage) models.Result {
	var lastErr string
	for _, tier := range d.tiers {
		st.tier, st.transport = tier.Number, tier.Transport.Name()
		outcome := d.attempt(ctx, tier, msg)
		if outcome.Success {
			return models.Delivered(tier.Number, tier.Transport.Name(), outcome.ProviderMessageID)
		}
		lastErr = fmt.Sprintf("tier %d (%s): %v", tier.Number, tier.Transport.Name(), outcome.Err)
	}
	return models.Failed(models.ReasonAllTiersExhausted, lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, tier transport.Tier, msg models.ResolvedMessage) transport.Outcome {
	name := tier.Transport.Name()
	tierLabel := strconv.Itoa(tier.Number)
	log := d.logger.WithFields(map[string]interface{}{
		"tier":      tier.Number,
		"transport": name,
		"template":  msg.Template,
	})

	ctx, span := d.tracer.Start(ctx, "notification.tier", trace.WithAttributes(
		attribute.Int("tier", tier.Number),
		attribute.String("transport", name),
	))
	defer span.End()

	timeout := tier.Timeout
	if timeout <= 0 {
		timeout = DefaultTierTimeout
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	outcome := runBounded(tctx, func(ctx context.Context) transport.Outcome {
		if v, ok := tier.Transport.(transport.Verifier); ok {
			if err := v.Verify(ctx); err != nil {
				metrics.TransportHandshakeFailures.WithLabelValues(name).Inc()
				log.Warn("Transport handshake failed, attempting send anyway", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		return tier.Transport.Send(ctx, msg)
	})

	if outcome.Success {
		metrics.TransportAttempts.WithLabelValues(tierLabel, name, "success").Inc()
		return outcome
	}

	metrics.TransportAttempts.WithLabelValues(tierLabel, name, "failure").Inc()
	span.SetStatus(codes.Error, outcome.Err.Error())
	log.Warn("Transport tier failed", map[string]interface{}{
		"error": errors.NewTransportTierFailedError(tier.Number, name, outcome.Err.Error()).Error(),
	})
	return outcome
}

// runBounded runs fn on its own goroutine so that neither a panic nor a
// transport that ignores ctx can hold the tier past its deadline.
func runBounded(ctx context.Context, fn func(context.Context) transport.Outcome) transport.Outcome {
	done := make(chan transport.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- transport.Failure(fmt.Errorf("transport panicked: %v", r))
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case out := <-done:
		if !out.Success && out.Err == nil {
			out = transport.Failure(nil)
		}
		return out
	case <-ctx.Done():
		return transport.Failure(fmt.Errorf("timed out: %w", ctx.Err()))
	}
}

// finish writes the single log entry for this call and records metrics.
func (d *Dispatcher) finish(ctx context.Context, st *dispatch, result models.Result) models.Result {
	entry := d.entry(st, result)

	ctx = context.WithoutCancel(ctx)
	logCtx, cancel := context.WithTimeout(ctx, d.opts.LogTimeout)
	err := d.log.Record(logCtx, entry)
	cancel()
	if err != nil {
		d.reportLogFailure(ctx, entry, err)
	} else {
		result.LogID = entry.ID
	}

	status := string(entry.Status)
	elapsed := d.now().Sub(st.started)
	metrics.NotificationsDispatched.WithLabelValues(status, string(result.Error)).Inc()
	metrics.DispatchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	d.obs.RecordDispatch(ctx, status, result.Tier, elapsed)

	fields := map[string]interface{}{
		"logId":     entry.ID,
		"template":  entry.TemplateName,
		"type":      entry.NotificationType,
		"language":  entry.Language,
		"tier":      result.Tier,
		"transport": result.Transport,
		"duration":  elapsed.Milliseconds(),
	}
	if result.Success {
		d.logger.Info("Notification sent", fields)
	} else {
		fields["reason"] = string(result.Error)
		fields["detail"] = result.Detail
		d.logger.Error("Notification failed", fields)
	}
	return result
}

func (d *Dispatcher) entry(st *dispatch, result models.Result) models.DeliveryLogEntry {
	e := models.DeliveryLogEntry{
		ID:               d.newID(),
		Recipient:        st.req.RecipientEmail,
		TemplateName:     st.req.TemplateName,
		NotificationType: st.req.NotificationType,
		Language:         st.language,
		TransportTier:    result.Tier,
		TransportName:    result.Transport,
		Timestamp:        d.now(),
	}
	if !result.Success && st.tier > 0 {
		e.TransportTier, e.TransportName = st.tier, st.transport
	}
	if result.Success {
		e.Status = models.DeliveryStatusSent
		if result.ProviderMessageID != "" {
			id := result.ProviderMessageID
			e.ProviderMessageID = &id
		}
		return e
	}

	e.Status = models.DeliveryStatusFailed
	msg := string(result.Error)
	if result.Detail != "" {
		msg += ": " + result.Detail
	}
	e.ErrorMessage = &msg
	return e
}

func (d *Dispatcher) reportLogFailure(ctx context.Context, entry models.DeliveryLogEntry, err error) {
	sink := "delivery_log"
	var sinkErr *deliverylog.SinkError
	if stderrors.As(err, &sinkErr) {
		sink = sinkErr.Sink
	}
	metrics.DeliveryLogWriteFailures.WithLabelValues(sink).Inc()

	stdErr := errors.NewLogWriteFailedError(sink, err)
	fields := map[string]interface{}{
		"logId":     entry.ID,
		"recipient": entry.Recipient,
		"template":  entry.TemplateName,
		"status":    string(entry.Status),
		"tier":      entry.TransportTier,
		"error":     stdErr.Error(),
	}
	d.logger.Error("Delivery log write failed", fields)

	if d.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.LogTimeout)
	defer cancel()
	alertErr := d.alerts.Report(ctx, alerts.Alert{
		Kind:    alerts.KindLogWriteFailure,
		Message: stdErr.Error(),
		Fields:  fields,
	})
	if alertErr != nil {
		d.logger.Error("Operational alert could not be delivered", map[string]interface{}{
			"logId": entry.ID,
			"error": alertErr.Error(),
		})
	}
}

func (d *Dispatcher) normalize(req models.NotificationRequest) models.NotificationRequest {
	req.RecipientEmail = strings.TrimSpace(req.RecipientEmail)
	req.TemplateName = strings.TrimSpace(req.TemplateName)
	req.NotificationType = strings.TrimSpace(req.NotificationType)
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.TemplateName == "" && req.NotificationType != "" {
		req.TemplateName = d.opts.TypeTemplates[req.NotificationType]
	}
	return req
}

// resolveLanguage prefers the request, then the recipient's stored
// preference, then the default. Unsupported values become the default.
func (d *Dispatcher) resolveLanguage(ctx context.Context, req models.NotificationRequest) string {
	lang := req.Language
	if lang == "" && d.prefs != nil {
		pctx, cancel := context.WithTimeout(ctx, d.opts.StoreTimeout)
		pref, err := d.prefs.PreferredLanguage(pctx, req.RecipientEmail)
		cancel()
		if err != nil {
			d.logger.Warn("Preferred language lookup failed, using default", map[string]interface{}{
				"error": err.Error(),
			})
		}
		lang = pref
	}
	if !d.supported[lang] {
		return d.opts.DefaultLanguage
	}
	return lang
}

func (d *Dispatcher) fallbacks(language string) []string {
	if !d.opts.LanguageFallback {
		return nil
	}
	out := make([]string, 0, len(d.opts.SupportedLanguages))
	for _, lang := range d.opts.SupportedLanguages {
		if lang != language {
			out = append(out, lang)
		}
	}
	return out
}

func validateRequest(req models.NotificationRequest) string {
	var problems []string
	if req.RecipientEmail == "" {
		problems = append(problems, "recipientEmail is required")
	} else if !validation.ValidateEmail(req.RecipientEmail) {
		problems = append(problems, "recipientEmail is not a valid address")
	}
	if req.TemplateName == "" {
		if req.NotificationType != "" {
			problems = append(problems, fmt.Sprintf("no template configured for notification type %q", req.NotificationType))
		} else {
			problems = append(problems, "templateName or notificationType is required")
		}
	}
	return strings.Join(problems, "; ")
}

func templateDetail(name string, err error) string {
	if stdErr, ok := errors.AsStandardError(err); ok {
		switch stdErr.Code {
		case errors.ErrCodeTemplateMalformed:
			return "template " + name + " is malformed: " + reasonOf(stdErr.Details)
		case errors.ErrCodeTemplateNotFound:
			return "no active template named " + name
		}
		return "template " + name + " could not be read: " + stdErr.Message
	}
	return "template " + name + " could not be read"
}

// reasonOf extracts the reason from a malformed-template detail string.
func reasonOf(details string) string {
	if i := strings.Index(details, "reason: "); i >= 0 {
		return details[i+len("reason: "):]
	}
	return details
}
