package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/carelink/hospital-settlement/internal/platform/config"
	"github.com/carelink/hospital-settlement/internal/platform/database"
	"github.com/carelink/hospital-settlement/internal/platform/logger"
	"github.com/carelink/hospital-settlement/internal/platform/messagebroker"
	httpadapter "github.com/carelink/hospital-settlement/internal/settlement_service/adapters/http"
	"github.com/carelink/hospital-settlement/internal/settlement_service/adapters/paymentgateway"
	"github.com/carelink/hospital-settlement/internal/settlement_service/app"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository/postgres"
)

const (
	serviceName     = "settlement-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger is a middleware that logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	appLogger.Info("Settlement service starting...",
		"http_port", cfg.HTTPPort,
		"metrics_port", cfg.MetricsPort,
		"log_level", cfg.LogLevel,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS", "url", cfg.NATSUrl)

	txManager := postgres.NewPgTxManager(dbPool)
	chargeRepo := postgres.NewPgChargeRepository(appLogger)
	regRepo := postgres.NewPgRegistrationRepository(appLogger)
	rxRepo := postgres.NewPgPrescriptionRepository(appLogger)
	inventoryRepo := postgres.NewPgInventoryRepository(appLogger)
	sequenceRepo := postgres.NewPgSequenceRepository(dbPool, appLogger)
	outboxRepo := postgres.NewPgOutboxRepository(dbPool, appLogger)

	sequences := app.NewSequenceService(sequenceRepo, appLogger)
	inventory := app.NewInventoryService(inventoryRepo, appLogger)
	discount := app.PercentDiscountPolicy{Percent: cfg.DiscountPercent}
	charges := app.NewChargeService(dbPool, txManager, chargeRepo, regRepo, rxRepo, sequences, discount, appLogger)
	payments := app.NewPaymentService(dbPool, txManager, chargeRepo, rxRepo, outboxRepo, appLogger)
	refundWindow := time.Duration(cfg.RefundWindowDays) * 24 * time.Hour
	refunds := app.NewRefundService(dbPool, txManager, chargeRepo, rxRepo, inventory, outboxRepo, refundWindow, appLogger)
	reports := app.NewReportService(dbPool, chargeRepo, appLogger)

	provider := paymentgateway.NewMockPaymentProvider(appLogger, cfg.MockProviderDeclines)
	prober := app.NewHealthProber(sequences, cfg.HealthProbeInterval, appLogger)
	dispatcher := app.NewOutboxDispatcher(outboxRepo, natsClient, cfg.OutboxPollInterval, cfg.OutboxBatchSize, appLogger)

	validate := validator.New()
	handler := httpadapter.NewSettlementHandler(charges, payments, refunds, reports, provider, prober, appLogger, validate)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(httpLogger(appLogger))
	router.Use(chiMiddleware.Recoverer)
	router.Get("/healthz", handler.Healthz)
	router.Route("/api/v1", handler.RegisterRoutes)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := prober.Run(groupCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := dispatcher.Run(groupCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutdown signal received, stopping servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service terminated with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Settlement service stopped cleanly")
}
