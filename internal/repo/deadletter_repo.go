package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// CreateDeadLetter stores d, assigning an ID when empty.
func CreateDeadLetter(ctx context.Context, db *gorm.DB, d *domain.DeadLetter) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(d).Error
}

// ListDeadLetters returns the newest dead letters first.
func ListDeadLetters(ctx context.Context, db *gorm.DB, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.DeadLetter
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountDeadLetters returns the total number of dead letters.
func CountDeadLetters(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.DeadLetter{}).Count(&n).Error
	return n, err
}
