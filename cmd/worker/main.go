// Command worker runs the delivery poller, the outbox sweeper and the
// janitor without the HTTP API. Delivery metrics are served on
// METRICS_ADDR (default :9091) at /metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-voucher-gift/internal/app"
	"github.com/tbourn/go-voucher-gift/internal/config"
	"github.com/tbourn/go-voucher-gift/internal/observability"
	"github.com/tbourn/go-voucher-gift/internal/sysutil"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger, closeLog := sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		File:    cfg.LogFile,
		Service: cfg.OTEL.ServiceName,
		Role:    "worker",
	})
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.BuildInfo{
		Version:     sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Environment: cfg.GinMode,
		Role:        "worker",
	})
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(c)
	}()

	a, err := app.New(ctx, cfg, logger, app.Options{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close backends")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()

	if err := a.Workers.Start(ctx); err != nil {
		return err
	}
	logger.Info().
		Str("queue", cfg.Queue.Driver).
		Str("dead_letters", cfg.DeadLetter.Driver).
		Int("batch_size", cfg.Delivery.BatchSize).
		Int("concurrency", cfg.Delivery.Concurrency).
		Msg("delivery workers running")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	_ = a.Workers.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info().Msg("worker stopped")
	return nil
}
