package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/repo"
)

// Janitor enforces retention: expired idempotency keys and outbox entries
// published more than RetainPublished ago are deleted.
type Janitor struct {
	DB              *gorm.DB
	RetainPublished time.Duration
	Logger          zerolog.Logger

	now func() time.Time
}

// CleanResult counts rows removed by one Clean.
type CleanResult struct {
	Idempotency int64
	Outbox      int64
}

// Clean runs both purges; a failing purge does not skip the other.
func (j *Janitor) Clean(ctx context.Context) (CleanResult, error) {
	now := time.Now().UTC()
	if j.now != nil {
		now = j.now()
	}

	var res CleanResult
	var errs []error

	n, err := repo.PurgeExpiredIdempotency(ctx, j.DB, now)
	if err != nil {
		errs = append(errs, err)
	}
	res.Idempotency = n

	if j.RetainPublished > 0 {
		n, err = repo.PurgePublishedOutbox(ctx, j.DB, now.Add(-j.RetainPublished))
		if err != nil {
			errs = append(errs, err)
		}
		res.Outbox = n
	}

	if res.Idempotency > 0 || res.Outbox > 0 {
		j.Logger.Info().
			Int64("idempotency_purged", res.Idempotency).
			Int64("outbox_purged", res.Outbox).
			Msg("janitor purged expired rows")
	}
	return res, errors.Join(errs...)
}

// Job wraps Clean in a ticker job.
func (j *Janitor) Job(interval time.Duration) *Job {
	return NewJob("janitor", interval, func(ctx context.Context) error {
		_, err := j.Clean(ctx)
		return err
	}, j.Logger)
}
