package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"PulseJoin/internal/api"
	"PulseJoin/internal/balancer"
	"PulseJoin/internal/config"
	"PulseJoin/internal/db"
	"PulseJoin/internal/email"
	"PulseJoin/internal/gateway"
	"PulseJoin/internal/maintenance"
	"PulseJoin/internal/memstore"
	"PulseJoin/internal/metrics"
	"PulseJoin/internal/outcome"
	"PulseJoin/internal/phone"
	"PulseJoin/internal/queue"
	"PulseJoin/internal/ratelimit"
	"PulseJoin/internal/service"
	"PulseJoin/internal/worker"
)

// store is everything the server needs from persistence; both the
// Postgres and in-memory stores satisfy it.
type store interface {
	service.Store
	outcome.HealthStore
	balancer.InstanceStore
	ratelimit.UsageStore
	maintenance.CounterStore
}

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Storage
	// ------------------------------------------------
	var st store
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; state is lost on restart")
		st = memstore.New()
	default:
		pg, err := db.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		st = pg
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Operator Alerts
	// ------------------------------------------------
	var alerter outcome.Alerter = email.Nop{}
	if cfg.SMTPHost != "" && cfg.AlertTo != "" {
		alerter = email.NewAlerter(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.AlertTo)
	}

	// ------------------------------------------------
	// Campaign Processor
	// ------------------------------------------------
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKeyHeader, cfg.GatewayTimeout, cfg.GatewayRateLimit)
	outcomes := outcome.NewHandler(st, alerter, cfg.Cooldown, logger)
	picker := balancer.New(st, logger)
	hub := worker.NewStatusHub()

	processor := worker.NewProcessor(
		st,
		picker,
		gw,
		outcomes,
		phone.Normalizer{CountryCode: cfg.DefaultCountryCode},
		hub,
		worker.Config{
			PollInterval: cfg.PollInterval,
			StoreRetries: cfg.StoreRetryAttempts,
		},
		logger,
	)

	limiter := ratelimit.New(st, ratelimit.Defaults{
		DailyContacts: cfg.DefaultDailyContactLimit,
		MaxInstances:  cfg.DefaultMaxInstances,
	}, loc)

	svc := service.New(ctx, st, limiter, processor, hub, logger)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Service: svc,
		Log:     logger,
	}

	apiServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           apiHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Submission Queue (optional)
	// ------------------------------------------------
	if cfg.AMQPURL != "" {
		consumer := &queue.Consumer{Service: svc, Log: logger}
		go func() {
			if err := consumer.Listen(ctx, cfg.AMQPURL, cfg.AMQPQueue); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("queue consumer stopped", zap.Error(err))
			}
		}()
	}

	// ------------------------------------------------
	// Daily Counter Reset
	// ------------------------------------------------
	scheduler, err := maintenance.New(cfg.ResetSchedule, loc, st, logger)
	if err != nil {
		logger.Fatal("failed to schedule counter reset", zap.Error(err))
	}
	scheduler.Start()
	logger.Info("counter reset scheduled", zap.Time("next", scheduler.Next()))

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Stop accepting new submissions
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	// Runs observe the cancelled root context and return without finalizing
	svc.Wait()

	// Flush blocked-instance alerts still in flight
	outcomes.Wait()

	scheduler.Stop(shutdownCtx)

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
