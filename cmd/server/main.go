package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clothstore-be/internal/catalog"
	"clothstore-be/internal/config"
	"clothstore-be/internal/db"
	"clothstore-be/internal/httpapi"
	"clothstore-be/internal/inventory"
	"clothstore-be/internal/logger"
	"clothstore-be/internal/metrics"
	"clothstore-be/internal/middleware"
	"clothstore-be/internal/notify"
	"clothstore-be/internal/order"
	"clothstore-be/internal/payment"
	"clothstore-be/internal/payment/webhook"
	"clothstore-be/internal/telemetry"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const serviceVersion = "0.1.0"

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.OTelServiceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("init meter: %w", err)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	if err := runtime.Start(); err != nil {
		log.Warn("runtime metrics unavailable", zap.Error(err))
	}

	database := initDBFunc(cfg)
	defer database.Close()

	sink, err := newSink(cfg)
	if err != nil {
		return err
	}
	if c, ok := sink.(io.Closer); ok {
		defer c.Close()
	}

	handler, err := newServer(ctx, cfg, database, sink, metricsHandler)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServer wires repositories, services and handlers into the router.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB, sink notify.Sink, metricsHandler http.Handler) (http.Handler, error) {
	engine, err := metrics.NewEngine(otel.Meter("clothstore-be"))
	if err != nil {
		return nil, fmt.Errorf("init engine metrics: %w", err)
	}

	tx := db.NewTxManager(database)
	catalogRepo := catalog.NewRepository(database)
	ledger := inventory.NewLedger(catalogRepo, tx)

	orderSvc := order.NewService(order.NewRepository(database), catalogRepo, ledger, tx, sink, engine)

	reconciler := payment.NewReconciler(
		payment.NewRepository(database),
		orderSvc,
		payment.NewVNPayGateway(cfg.VNPay),
		tx,
		engine,
		payment.Options{
			StrictSignature:     cfg.VNPay.StrictSignature,
			LegacyFallbackMatch: cfg.LegacyFallbackMatch,
		},
	)
	if cfg.LegacyFallbackMatch {
		logger.L().Warn("legacy payment fallback matching is enabled")
	}

	return httpapi.NewRouter(httpapi.Deps{
		Orders:   httpapi.NewOrderHandlers(orderSvc),
		Payments: httpapi.NewPaymentHandlers(reconciler),
		Products: httpapi.NewProductHandlers(catalogRepo),
		Webhooks: webhook.NewWebhookHandler(reconciler),
		Auth:     middleware.NewAuthMiddleware(cfg.JWTSecret),
		CORS:     middleware.NewCORS(cfg.CORSOrigin),
		Limiter:  middleware.NewRateLimiter(ctx, cfg.InternalKey, "/payments/vnpay"),
		Metrics:  metricsHandler,
		Ping:     database.PingContext,
	}), nil
}

func newSink(cfg *config.Config) (notify.Sink, error) {
	switch cfg.NotifyDriver {
	case "", "log":
		return notify.LogSink{}, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required for the kafka notifier")
		}
		return notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaOrderTopic), nil
	case "amqp":
		if cfg.AMQPURL == "" {
			return nil, errors.New("AMQP_URL is required for the amqp notifier")
		}
		s, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.NotifyDriver)
	}
}
