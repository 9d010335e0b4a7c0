// Package app assembles the dispatcher and its backing stores from one
// Config. Every process in cmd/ goes through Build.
package app

import (
	"context"
	"fmt"
	"time"

	"notification-dispatch/internal/common/aws"
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/database"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/mail"
	"notification-dispatch/internal/common/observability"
	"notification-dispatch/internal/notification/alerts"
	"notification-dispatch/internal/notification/deliverylog"
	"notification-dispatch/internal/notification/dispatch"
	"notification-dispatch/internal/notification/preferences"
	"notification-dispatch/internal/notification/render"
	"notification-dispatch/internal/notification/sender"
	"notification-dispatch/internal/notification/template"
	"notification-dispatch/internal/notification/transport"
)

// Overrides replace the Postgres-backed stores. When both Templates and
// Recorder are set, Build never connects to Postgres.
type Overrides struct {
	Templates   template.Store
	Recorder    deliverylog.Recorder
	Preferences preferences.Store
}

// Runtime owns the connections opened by Build.
type Runtime struct {
	Config        *config.Config
	Dispatcher    *dispatch.Dispatcher
	Observability *observability.Observability
	Postgres      *database.PostgresClient
	Redis         *database.RedisClient
	// History reads back logged entries; nil when the log is not queryable.
	History deliverylog.Reader

	log logger.Logger
}

func Build(ctx context.Context, cfg *config.Config, log logger.Logger, ov Overrides) (*Runtime, error) {
	rt := &Runtime{
		Config:        cfg,
		Observability: observability.New(cfg.Observability),
		log:           log,
	}

	templates, recorder, prefs := ov.Templates, ov.Recorder, ov.Preferences
	if templates == nil || recorder == nil {
		if err := rt.connectPostgres(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}

	if templates == nil {
		templates = rt.templateStore(ctx)
	}
	if recorder == nil {
		rec, err := rt.recorder(ctx)
		if err != nil {
			rt.Close()
			return nil, err
		}
		recorder = rec
	} else if reader, ok := recorder.(deliverylog.Reader); ok {
		rt.History = reader
	}
	if prefs == nil && rt.Postgres != nil {
		prefs = preferences.NewPostgresStore(rt.Postgres.DB)
	}

	tiers, err := rt.tiers(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	d, err := dispatch.New(dispatch.Deps{
		Templates:     templates,
		Renderer:      rt.renderer(),
		Senders:       sender.NewResolver(cfg.Notifications),
		Tiers:         tiers,
		Log:           recorder,
		Preferences:   prefs,
		Alerts:        rt.alerts(ctx),
		Observability: rt.Observability,
		Logger:        log,
	}, dispatch.OptionsFromConfig(cfg.Notifications))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Dispatcher = d
	return rt, nil
}

func (rt *Runtime) connectPostgres(ctx context.Context) error {
	var pg *database.PostgresClient
	err := RetryWithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(rt.Config.Database.Postgres)
		if err != nil {
			return err
		}
		return pingOrClose(ctx, pg)
	}, 15, 2*time.Second, rt.log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	rt.Postgres = pg
	rt.log.Info("PostgreSQL connected successfully", nil)
	return nil
}

// pingOrClose releases the pool when the database is unreachable so each
// retry starts from a fresh one.
func pingOrClose(ctx context.Context, pg *database.PostgresClient) error {
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return err
	}
	return nil
}

// templateStore layers the Redis cache over Postgres when a TTL is set. An
// unreachable cache is skipped, not fatal.
func (rt *Runtime) templateStore(ctx context.Context) template.Store {
	var store template.Store = template.NewPostgresStore(rt.Postgres.DB)

	ttl := config.GetDuration(rt.Config.Notifications.TemplateCacheTTL)
	if !rt.Config.Database.Redis.Enabled || ttl <= 0 {
		return store
	}

	rdb := database.NewRedis(rt.Config.Database.Redis)
	if err := rdb.Ping(ctx); err != nil {
		rt.log.Warn("Template cache unavailable, reading templates directly", map[string]interface{}{
			"error": err.Error(),
		})
		rdb.Close()
		return store
	}
	rt.Redis = rdb
	return template.NewCachedStore(store, rdb.Client, ttl, rt.log)
}

func (rt *Runtime) recorder(ctx context.Context) (deliverylog.Recorder, error) {
	logCfg := rt.Config.Notifications.DeliveryLog

	pgRec, err := deliverylog.NewPostgresRecorder(rt.Postgres.DB, logCfg.Table)
	if err != nil {
		return nil, err
	}
	rt.History = pgRec

	multi := deliverylog.NewMulti().Add("postgres", pgRec)
	esCfg := rt.Config.Database.Elasticsearch
	if !esCfg.Enabled || !logCfg.MirrorToSearch {
		return multi, nil
	}

	es, err := database.NewElasticsearch(esCfg)
	if err == nil {
		err = es.Ping(ctx)
	}
	if err == nil {
		err = es.EnsureDeliveryLogIndex(ctx, logCfg.ElasticsearchIndex)
	}
	if err != nil {
		rt.log.Warn("Delivery log search mirror disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return multi, nil
	}
	return multi.Add("elasticsearch", deliverylog.NewElasticsearchRecorder(es.Client, logCfg.ElasticsearchIndex, es.Timeout)), nil
}

func (rt *Runtime) tiers(ctx context.Context) ([]transport.Tier, error) {
	cfg := rt.Config
	var clients transport.Clients

	if transport.NeedsKind(cfg, config.TransportKindSES) {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		clients.SES = ses
	}
	if transport.NeedsKind(cfg, config.TransportKindSMTP) {
		clients.Mailer = mail.New(cfg.Integrations.SMTP)
	}
	return transport.BuildTiers(cfg, clients, rt.log)
}

func (rt *Runtime) renderer() *render.Renderer {
	n := rt.Config.Notifications
	var loc *time.Location
	if n.Timezone != "" {
		l, err := time.LoadLocation(n.Timezone)
		if err != nil {
			rt.log.Warn("Unknown timezone, formatting timestamps in UTC", map[string]interface{}{
				"timezone": n.Timezone,
			})
		} else {
			loc = l
		}
	}
	return render.New(render.Options{Location: loc, TimestampVariables: n.TimestampVariables})
}

// alerts prefers the SNS topic and falls back to the error log.
func (rt *Runtime) alerts(ctx context.Context) alerts.Reporter {
	cfg := rt.Config
	if !cfg.Notifications.DeliveryLog.AlertOnFailure {
		return nil
	}
	sns := cfg.Integrations.AWS.SNS
	if sns.Enabled && sns.AlertTopicARN != "" {
		client, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err == nil {
			return alerts.NewSNSReporter(client, sns.AlertTopicARN, cfg.App.Name)
		}
		rt.log.Warn("SNS alert channel unavailable", map[string]interface{}{"error": err.Error()})
	}
	return alerts.NewLogReporter(rt.log)
}

// Ready pings the stores the dispatcher cannot work without.
func (rt *Runtime) Ready(ctx context.Context) error {
	if rt.Postgres == nil {
		return nil
	}
	return rt.Postgres.Ping(ctx)
}

func (rt *Runtime) Close() {
	if rt.Redis != nil {
		rt.Redis.Close()
	}
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
	if rt.Observability != nil {
		rt.Observability.Shutdown()
	}
}

// RetryWithBackoff runs operation until it succeeds, doubling the delay
// between attempts.
func RetryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
