// Command server runs the voucher gift HTTP API and, unless WORKER_ENABLED is
// false, the delivery workers in the same process.
//
//	@title			Voucher Gift API
//	@version		1.0
//	@description	Gift vouchers by email or wallet address with idempotent submission and asynchronous delivery.
//	@BasePath		/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-voucher-gift/internal/app"
	"github.com/tbourn/go-voucher-gift/internal/config"
	httpapi "github.com/tbourn/go-voucher-gift/internal/http"
	"github.com/tbourn/go-voucher-gift/internal/observability"
	"github.com/tbourn/go-voucher-gift/internal/sysutil"
)

var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger, closeLog := sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		File:    cfg.LogFile,
		Service: cfg.OTEL.ServiceName,
		Role:    "api",
	})
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.BuildInfo{
		Version:     sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Environment: cfg.GinMode,
		Role:        "api",
	})
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	a, err := app.New(ctx, cfg, logger, app.Options{RateCounter: true, Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close backends")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:          a.DB,
		Vouchers:    a.Submission,
		Delivery:    a.Delivery,
		Stats:       a.Metrics,
		Queue:       a.Queue,
		DeadLetters: a.Lister,
		Counter:     a.Counter,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	if cfg.WorkerEnabled {
		if err := a.Workers.Start(ctx); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Bool("workers", cfg.WorkerEnabled).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if a.Workers.IsRunning() {
		_ = a.Workers.Stop()
	}
	logger.Info().Msg("server stopped")
	return nil
}
