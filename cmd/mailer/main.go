// Command mailer drains the email queue filled by the API server and sends
// each message through SES.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"docutalk-backend/internal/config"
	"docutalk-backend/internal/mailing"
	"docutalk-backend/internal/metrics"
	"docutalk-backend/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	metrics.Init()

	if cfg.RabbitMQ.URL == "" {
		logger.Fatal("RABBITMQ_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mailing.NewSESClient(ctx, cfg.SES)
	if err != nil {
		logger.Fatal("Failed to create SES client", zap.Error(err))
	}
	sender := mailing.NewSESSender(client)

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", zap.Error(err))
	}
	defer ch.Close()

	if err := mailing.DeclareTopology(ch, cfg.RabbitMQ.Queue); err != nil {
		logger.Fatal("Failed to declare queues", zap.Error(err))
	}

	worker := mailing.NewWorker(mailing.WorkerConfig{
		Queue:       cfg.RabbitMQ.Queue,
		Concurrency: cfg.RabbitMQ.WorkerConcurrency,
		MaxAttempts: cfg.RabbitMQ.MaxAttempts,
		RetryDelay:  cfg.RabbitMQ.RetryDelay,
	}, sender, ch)

	if cfg.RabbitMQ.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer := &http.Server{Addr: cfg.RabbitMQ.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics listener failed", zap.Error(err))
			}
		}()
		defer metricsServer.Close()
	}

	logger.Info("Mail worker started",
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.Int("concurrency", cfg.RabbitMQ.WorkerConcurrency),
	)
	if err := worker.Run(ctx, ch); err != nil {
		logger.Error("Mail worker stopped", zap.Error(err))
		return
	}
	logger.Info("Mail worker shutdown complete")
}
