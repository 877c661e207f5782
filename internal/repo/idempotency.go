// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for voucher submissions.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// GetIdempotency returns a non-expired record for key or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClaimIdempotencyKey maps key to resourceID as of now. A mapping that has
// expired, or whose voucher no longer exists, is replaced; a live one yields
// ErrDuplicate. Run it inside the transaction that creates the voucher so the
// key and the record commit or roll back together.
func ClaimIdempotencyKey(ctx context.Context, db *gorm.DB, key, resourceID string, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		Key:        key,
		ResourceID: resourceID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := tx.Session(&gorm.Session{NewDB: true}).Model(&domain.VoucherGift{}).Select("id")
		if err := tx.Where("key = ? AND (expires_at <= ? OR resource_id NOT IN (?))", key, now, existing).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes records whose expiry is at or before now
// and reports how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
