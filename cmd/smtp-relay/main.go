// cmd/smtp-relay/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/mail"
	"notification-dispatch/internal/relay"
)

func main() {
	port := flag.Int("port", 0, "listen port (defaults to server.relay_port)")
	flag.Parse()

	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	listen := cfg.Server.RelayPort
	if *port > 0 {
		listen = *port
	}

	mailer := mail.New(cfg.Integrations.SMTP)
	verifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := mailer.Verify(verifyCtx); err != nil {
		// The relay still starts; /health reports the SMTP state.
		zapLog.Warn("SMTP handshake failed at startup", zap.Error(err))
	}
	cancel()

	srv := relay.NewServer(mailer, relay.Options{
		APIKey:      cfg.Server.RelayAPIKey,
		DefaultFrom: cfg.Integrations.SMTP.DefaultFrom,
		SendTimeout: config.GetDuration(cfg.Integrations.SMTP.Timeout),
	}, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", listen),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("SMTP relay listening", zap.String("addr", server.Addr), zap.String("smtpHost", cfg.Integrations.SMTP.Host))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("SMTP relay failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping relay...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping relay", zap.Error(err))
	}
	zapLog.Info("SMTP relay stopped")
}
