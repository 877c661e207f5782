package deadletter

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/repo"
)

// DBSink writes dead letters to the dead_letters table.
type DBSink struct {
	DB *gorm.DB
}

// NewDBSink returns a sink on db.
func NewDBSink(db *gorm.DB) *DBSink { return &DBSink{DB: db} }

// Write implements Sink.
func (s *DBSink) Write(ctx context.Context, d *domain.DeadLetter) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return repo.CreateDeadLetter(ctx, s.DB, d)
}

// List implements Lister, newest first.
func (s *DBSink) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	return repo.ListDeadLetters(ctx, s.DB, limit)
}

// Count implements Counter.
func (s *DBSink) Count(ctx context.Context) (int64, error) {
	return repo.CountDeadLetters(ctx, s.DB)
}

var (
	_ Sink    = (*DBSink)(nil)
	_ Lister  = (*DBSink)(nil)
	_ Counter = (*DBSink)(nil)
)
