// Package worker runs the background loops of the voucher pipeline: the
// delivery poller, the outbox sweeper and the janitor. Each loop is a Job
// driven by a ticker; a Manager starts and stops them together.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrBusy is returned by RunOnce while another run of the same job is in
// progress.
var ErrBusy = errors.New("worker: job already running")

// Job calls run immediately on Start and then once per interval until Stop
// or context cancellation. Runs never overlap.
type Job struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewJob returns a stopped job.
func NewJob(name string, interval time.Duration, run func(context.Context) error, logger zerolog.Logger) *Job {
	if interval <= 0 {
		interval = time.Second
	}
	return &Job{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger.With().Str("job", name).Logger(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns the job name.
func (j *Job) Name() string { return j.name }

// Start launches the loop in a goroutine. It must be called at most once.
func (j *Job) Start(ctx context.Context) {
	j.logger.Info().Dur("interval", j.interval).Msg("job started")
	go j.loop(ctx)
}

func (j *Job) loop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.tick(ctx)
	for {
		select {
		case <-ticker.C:
			j.tick(ctx)
		case <-j.quit:
			j.logger.Info().Msg("job stopped")
			return
		case <-ctx.Done():
			j.logger.Info().Msg("shutdown signal received, job stopped")
			return
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrBusy) {
		if ctx.Err() != nil {
			return
		}
		j.logger.Error().Err(err).Msg("job run failed")
	}
}

// RunOnce executes one run now, returning ErrBusy when a run is already in
// progress.
func (j *Job) RunOnce(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Debug().Msg("job is already running, skipping this run")
		return ErrBusy
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()
	return j.run(ctx)
}

// Stop ends the loop and waits for an in-flight run to return. Safe to call
// more than once and after the context was cancelled.
func (j *Job) Stop() {
	j.stopOnce.Do(func() { close(j.quit) })
	<-j.done
}
