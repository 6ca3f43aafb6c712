package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/medstore/internal/config"
	"github.com/joao-fontenele/medstore/internal/messaging"
	"github.com/joao-fontenele/medstore/internal/telemetry"
	"github.com/joao-fontenele/medstore/internal/worker"
)

const serviceName = "medstore-worker"

func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	if cfg.EmailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := http.DefaultTransport
	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer func() { _ = shutdownTracer(context.Background()) }()
		transport = otelhttp.NewTransport(transport)
	}

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.WorkerGroupID, logger)
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: transport,
	}

	notificationHandler := worker.NewNotificationHandler(cfg.EmailServiceURL, cfg.PharmacyInbox, httpClient, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker",
		"brokers", cfg.KafkaBrokers,
		"topic", cfg.OrderEventsTopic,
		"group_id", cfg.WorkerGroupID,
	)

	if err := consumer.Consume(ctx, notificationHandler.Handle); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
