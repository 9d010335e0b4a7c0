// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-dispatch/internal/app"
	"notification-dispatch/internal/common/camunda"
	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/queue"

	sn "notification-dispatch/internal/workers/communication/send-notification"
)

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := app.Build(ctx, cfg, log, app.Overrides{})
	if err != nil {
		zapLog.Fatal("dispatcher setup failed", zap.Error(err))
	}
	defer rt.Close()
	zapLog.Info("Dispatcher ready", zap.Int("tiers", len(cfg.Transports.Tiers)))

	// --- Zeebe worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.CamundaWorker
	if cfg.Camunda.Enabled {
		err = app.RetryWithBackoff(ctx, func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda)
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		wcfg := sn.FromWorkerConfig(config.GetWorkerConfig(cfg, sn.TaskType))
		if err := wcfg.Validate(); err != nil {
			zapLog.Fatal("invalid worker config", zap.String("taskType", sn.TaskType), zap.Error(err))
		}
		if wcfg.Enabled {
			handler := sn.NewHandler(wcfg, rt.Dispatcher, log)
			jobWorker = camunda.NewWorker(zeebe.GetClient(), wcfg.MaxJobsActive, wcfg.Timeout, handler, zapLog)
		} else {
			zapLog.Info("worker disabled", zap.String("taskType", sn.TaskType))
		}
	}

	// --- Queue consumer ---
	var rabbit *queue.RabbitMqClient
	consumerDone := make(chan struct{})
	if cfg.RabbitMQ.Enabled {
		err = app.RetryWithBackoff(ctx, func() error {
			var err error
			rabbit, err = queue.NewRabbitMqClient(cfg.RabbitMQ)
			return err
		}, 10, 2*time.Second, log, "RabbitMQ connection")
		if err != nil {
			zapLog.Fatal("rabbitmq failed after retries", zap.Error(err))
		}
		if err := rabbit.SetUpExchangeAndQueue(); err != nil {
			zapLog.Fatal("rabbitmq topology setup failed", zap.Error(err))
		}
		deliveries, err := rabbit.Consume("worker-manager")
		if err != nil {
			zapLog.Fatal("rabbitmq consume failed", zap.Error(err))
		}

		consumer := queue.NewConsumer(rt.Dispatcher, rabbit, cfg.RabbitMQ.Prefetch, log)
		go func() {
			defer close(consumerDone)
			consumer.Run(ctx, deliveries)
		}()
		zapLog.Info("Queue consumer started", zap.String("queue", cfg.RabbitMQ.Queue))
	} else {
		close(consumerDone)
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := rt.Ready(checkCtx)
		if err == nil && zeebe != nil {
			err = zeebe.HealthCheck(checkCtx)
		}
		if err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if jobWorker != nil {
		jobWorker.Stop(shutdownCtx)
	}
	stop()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		zapLog.Warn("Queue consumer did not drain before shutdown deadline")
	}
	if rabbit != nil {
		rabbit.Close()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
