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
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	_ "github.com/lib/pq"

	"github.com/MarcelReig/mitaller/internal/checkout"
	"github.com/MarcelReig/mitaller/internal/domain"
	"github.com/MarcelReig/mitaller/internal/gateway"
	"github.com/MarcelReig/mitaller/internal/inventory"
	"github.com/MarcelReig/mitaller/internal/messaging"
	"github.com/MarcelReig/mitaller/internal/orders"
	"github.com/MarcelReig/mitaller/internal/payments"
	"github.com/MarcelReig/mitaller/internal/telemetry"
)

const defaultFeePercent = "10"

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "marketplace-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("marketplace-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := otelruntime.Start(); err != nil {
		logger.Warn("failed to start runtime metrics", "error", err)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if stripeKey == "" || webhookSecret == "" {
		logger.Error("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET environment variables are required")
		os.Exit(1)
	}

	feePercent := os.Getenv("MARKETPLACE_FEE_PERCENT")
	if feePercent == "" {
		feePercent = defaultFeePercent
	}
	percent, err := decimal.NewFromString(feePercent)
	if err != nil {
		logger.Error("invalid MARKETPLACE_FEE_PERCENT", "error", err, "value", feePercent)
		os.Exit(1)
	}
	fees := domain.FeePolicy{Percent: percent}

	var orderPlacedProducer, orderCancelledProducer, paymentSucceededProducer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		orderPlacedProducer = messaging.NewProducer(brokers, messaging.TopicOrderPlaced)
		orderCancelledProducer = messaging.NewProducer(brokers, messaging.TopicOrderCancelled)
		paymentSucceededProducer = messaging.NewProducer(brokers, messaging.TopicPaymentSucceeded)
		defer func() {
			_ = orderPlacedProducer.Close()
			_ = orderCancelledProducer.Close()
			_ = paymentSucceededProducer.Close()
		}()
	}

	inventoryRepo := inventory.NewRepository()
	ordersRepo := orders.NewRepository(db)
	paymentsRepo := payments.NewRepository(db)
	stripeGateway := gateway.NewStripeGateway(stripeKey, webhookSecret)

	checkoutService, err := checkout.NewService(db, inventoryRepo, logger)
	if err != nil {
		logger.Error("failed to create checkout service", "error", err)
		os.Exit(1)
	}
	checkoutHandler := checkout.NewHandler(checkoutService, orderPlacedProducer, logger)

	ordersService := orders.NewService(db, ordersRepo, inventoryRepo, logger)
	ordersHandler := orders.NewHandler(ordersRepo, ordersService, orderCancelledProducer, logger)

	paymentsService := payments.NewService(paymentsRepo, ordersRepo, stripeGateway, fees, logger)
	reconciler := payments.NewReconciler(db, paymentsRepo, logger)
	paymentsHandler := payments.NewHandler(paymentsService, reconciler, paymentsRepo, stripeGateway, paymentSucceededProducer, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(checkoutHandler.HandleCreate))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(ordersHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(ordersHandler.HandleUpdateStatus))
	mux.HandleFunc("DELETE /orders/{id}/items/{itemId}", telemetry.WithHTTPRoute(ordersHandler.HandleDeleteItem))

	mux.HandleFunc("POST /payments/checkout-session", telemetry.WithHTTPRoute(paymentsHandler.HandleCreateSession))
	mux.HandleFunc("POST /payments/webhook", telemetry.WithHTTPRoute(paymentsHandler.HandleWebhook))
	mux.HandleFunc("GET /payments/{id}", telemetry.WithHTTPRoute(paymentsHandler.HandleGet))

	mux.HandleFunc("GET /sellers/{sellerId}/sales", telemetry.WithHTTPRoute(ordersHandler.HandleSellerSales))
	mux.HandleFunc("GET /sellers/{sellerId}/payments", telemetry.WithHTTPRoute(paymentsHandler.HandleListSellerPayments))
	mux.HandleFunc("DELETE /sellers/{sellerId}", telemetry.WithHTTPRoute(ordersHandler.HandleDeleteSeller))

	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "marketplace-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting marketplace api", "port", port, "fee_percent", percent)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
