package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OutboxFlusher is satisfied by services.SubmissionService.
type OutboxFlusher interface {
	FlushOutbox(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// OutboxSweeper republishes vouchers whose inline publish never completed.
// Entries younger than After are left alone so an in-flight request can
// finish its own publish first.
type OutboxSweeper struct {
	Flusher OutboxFlusher
	After   time.Duration
	Batch   int
	Logger  zerolog.Logger

	now func() time.Time
}

// Sweep flushes one batch of stale outbox entries.
func (s *OutboxSweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if s.now != nil {
		now = s.now()
	}
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	n, err := s.Flusher.FlushOutbox(s.Logger.WithContext(ctx), now.Add(-s.After), batch)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.Logger.Info().Int("published", n).Msg("outbox sweep republished vouchers")
	}
	return n, nil
}

// Job wraps Sweep in a ticker job.
func (s *OutboxSweeper) Job(interval time.Duration) *Job {
	return NewJob("outbox-sweeper", interval, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	}, s.Logger)
}
