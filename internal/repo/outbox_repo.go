package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// MarkOutboxPublished records that the entry for voucherID reached the queue.
func MarkOutboxPublished(ctx context.Context, db *gorm.DB, voucherID, messageID string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.OutboxEntry{}).
		Where("voucher_id = ? AND status = ?", voucherID, domain.OutboxPending).
		Updates(map[string]any{
			"status":       domain.OutboxPublished,
			"message_id":   messageID,
			"published_at": at,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
}

// RecordOutboxFailure bumps the attempt counter and stores the publish error.
func RecordOutboxFailure(ctx context.Context, db *gorm.DB, voucherID, reason string) error {
	return db.WithContext(ctx).Model(&domain.OutboxEntry{}).
		Where("voucher_id = ? AND status = ?", voucherID, domain.OutboxPending).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}

// ListPendingOutbox returns up to limit unpublished entries created before
// olderThan, oldest first.
func ListPendingOutbox(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]domain.OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.OutboxEntry
	err := db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", domain.OutboxPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PurgePublishedOutbox deletes published entries older than before.
func PurgePublishedOutbox(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("status = ? AND published_at <= ?", domain.OutboxPublished, before).
		Delete(&domain.OutboxEntry{})
	return res.RowsAffected, res.Error
}
