// Package app assembles the voucher pipeline from configuration: storage,
// the delivery queue, the dead-letter sink, services and background workers.
// Both binaries build on it so the API and the standalone worker always share
// the same wiring.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/cache"
	"github.com/tbourn/go-voucher-gift/internal/config"
	"github.com/tbourn/go-voucher-gift/internal/deadletter"
	"github.com/tbourn/go-voucher-gift/internal/delivery"
	"github.com/tbourn/go-voucher-gift/internal/queue"
	"github.com/tbourn/go-voucher-gift/internal/repo"
	"github.com/tbourn/go-voucher-gift/internal/services"
	"github.com/tbourn/go-voucher-gift/internal/worker"
)

// Options selects optional parts of the graph.
type Options struct {
	// RateCounter builds the HTTP rate-limit store (API process only).
	RateCounter bool
	// Registerer receives the delivery metrics; nil skips registration.
	Registerer prometheus.Registerer
}

// App is the assembled dependency graph.
type App struct {
	Config config.Config
	Logger zerolog.Logger

	DB          *gorm.DB
	Queue       queue.Queue
	DeadLetters deadletter.Sink
	// Lister is nil when dead letters go to Kafka.
	Lister  deadletter.Lister
	Counter cache.Counter

	Metrics    *services.DeliveryMetrics
	Submission *services.SubmissionService
	Delivery   *services.DeliveryService
	Workers    *worker.Manager

	closers []func() error
}

// New opens every backend named by cfg. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (a *App, err error) {
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err = a.openDB(); err != nil {
		return nil, err
	}
	if err = a.openDeadLetters(); err != nil {
		return nil, err
	}
	if err = a.openQueue(ctx); err != nil {
		return nil, err
	}
	if opts.RateCounter {
		if err = a.openCounter(ctx); err != nil {
			return nil, err
		}
	}

	a.Metrics = services.NewDeliveryMetrics(opts.Registerer)

	validator := services.NewValidator(services.Limits{
		Min:       cfg.Voucher.MinAmount,
		Max:       cfg.Voucher.MaxAmount,
		HighValue: cfg.Voucher.HighValueThreshold,
	})
	a.Submission = services.NewSubmissionService(a.DB, a.Queue, validator)
	a.Submission.IdempotencyTTL = cfg.IdempotencyTTL

	channels := delivery.NewDispatcher(
		delivery.NewEmailChannel(logger.With().Str("channel", "email").Logger()),
		delivery.NewWalletChannel(logger.With().Str("channel", "wallet").Logger()),
	)
	a.Delivery = services.NewDeliveryService(a.DB, channels, a.DeadLetters, a.Metrics, logger.With().Str("component", "delivery").Logger())
	a.Delivery.MaxAttempts = cfg.Delivery.MaxAttempts
	a.Delivery.Concurrency = cfg.Delivery.Concurrency
	if cfg.Delivery.RPS > 0 {
		burst := cfg.Delivery.Concurrency
		if burst < 1 {
			burst = 1
		}
		a.Delivery.Limiter = rate.NewLimiter(rate.Limit(cfg.Delivery.RPS), burst)
	}

	a.Workers = worker.NewManager(a.jobs)
	return a, nil
}

func (a *App) openDB() error {
	dsn := a.Config.DB.Path
	if a.Config.DB.Driver == "postgres" {
		dsn = a.Config.DB.DSN
	}
	db, err := repo.Open(a.Config.DB.Driver, dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (a *App) openDeadLetters() error {
	switch a.Config.DeadLetter.Driver {
	case "kafka":
		p, err := deadletter.NewSyncProducer(a.Config.DeadLetter.KafkaBrokers)
		if err != nil {
			return err
		}
		sink, err := deadletter.NewKafkaSink(p, a.Config.DeadLetter.KafkaTopic)
		if err != nil {
			_ = p.Close()
			return err
		}
		a.DeadLetters = sink
		a.closers = append(a.closers, sink.Close)
	default:
		sink := deadletter.NewDBSink(a.DB)
		a.DeadLetters = sink
		a.Lister = sink
	}
	return nil
}

func (a *App) openQueue(ctx context.Context) error {
	qc := a.Config.Queue
	switch qc.Driver {
	case "sqs":
		client, err := queue.NewSQSClient(ctx, queue.SQSOptions{
			Region:          qc.AWSRegion,
			Endpoint:        qc.SQSEndpoint,
			AccessKeyID:     qc.AWSAccessKeyID,
			SecretAccessKey: qc.AWSSecretAccessKey,
		})
		if err != nil {
			return err
		}
		a.Queue = queue.NewSQSQueue(client, qc.SQSURL, qc.VisibilityTimeout, qc.WaitTime)
	default:
		a.Queue = queue.NewSQLQueue(a.DB, qc.Name, qc.VisibilityTimeout, qc.MaxReceives, a.DeadLetters)
	}
	return nil
}

func (a *App) openCounter(ctx context.Context) error {
	rc := a.Config.Rate
	if rc.Store != "redis" {
		a.Counter = cache.NewMemoryCounter()
		return nil
	}
	client, err := cache.NewClient(ctx, rc.Redis.Addr, rc.Redis.Password, rc.Redis.DB)
	if err != nil {
		return err
	}
	a.Counter = cache.NewRedisCounter(client, rc.Redis.Prefix)
	a.closers = append(a.closers, client.Close)
	return nil
}

// jobs builds a fresh set of background jobs.
func (a *App) jobs() []*worker.Job {
	cfg := a.Config
	poller := &worker.Poller{
		Queue:     a.Queue,
		Processor: a.Delivery,
		BatchSize: cfg.Delivery.BatchSize,
		Logger:    a.Logger.With().Str("component", "poller").Logger(),
	}
	sweeper := &worker.OutboxSweeper{
		Flusher: a.Submission,
		After:   cfg.Outbox.SweepAfter,
		Batch:   cfg.Outbox.SweepBatch,
		Logger:  a.Logger.With().Str("component", "outbox").Logger(),
	}
	janitor := &worker.Janitor{
		DB:              a.DB,
		RetainPublished: cfg.Outbox.RetainPublished,
		Logger:          a.Logger.With().Str("component", "janitor").Logger(),
	}
	return []*worker.Job{
		poller.Job(cfg.Delivery.PollInterval),
		sweeper.Job(cfg.Outbox.SweepInterval),
		janitor.Job(cfg.Outbox.JanitorInterval),
	}
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	if a.Workers != nil && a.Workers.IsRunning() {
		_ = a.Workers.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
