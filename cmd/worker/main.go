package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MarcelReig/mitaller/internal/messaging"
	"github.com/MarcelReig/mitaller/internal/telemetry"
	"github.com/MarcelReig/mitaller/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(context.Background(), "notification-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	notifier := worker.NewNotifier(emailServiceURL, httpClient, logger)

	brokers := strings.Split(kafkaBrokers, ",")
	subscriptions := []struct {
		topic   string
		handler func(ctx context.Context, payload []byte) error
	}{
		{messaging.TopicOrderPlaced, notifier.HandleOrderPlaced},
		{messaging.TopicOrderCancelled, notifier.HandleOrderCancelled},
		{messaging.TopicPaymentSucceeded, notifier.HandlePaymentSucceeded},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", brokers)

	errs := make(chan error, len(subscriptions))
	for _, sub := range subscriptions {
		consumer := messaging.NewConsumer(brokers, sub.topic, "notification-worker")
		defer func() { _ = consumer.Close() }()

		go func(topic string, handler func(ctx context.Context, payload []byte) error) {
			if err := consumer.Consume(ctx, handler); err != nil {
				if ctx.Err() == context.Canceled {
					logger.Info("consumer stopped", "topic", topic)
					errs <- nil
					return
				}
				logger.Error("consumer error", "error", err, "topic", topic)
				errs <- err
			}
		}(sub.topic, sub.handler)
	}

	for range subscriptions {
		if err := <-errs; err != nil {
			os.Exit(1)
		}
	}
}
