// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for voucher gifts: creation
// together with their outbox entry, lookup, and guarded status transitions.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// CreateVoucherWithOutbox inserts v and e in one transaction so a voucher
// never exists without the message that will deliver it.
func CreateVoucherWithOutbox(ctx context.Context, db *gorm.DB, v *domain.VoucherGift, e *domain.OutboxEntry) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(v).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		if e == nil {
			return nil
		}
		e.VoucherID = v.ID
		return tx.Create(e).Error
	})
}

// GetVoucher fetches a voucher by ID.
func GetVoucher(ctx context.Context, db *gorm.DB, id string) (*domain.VoucherGift, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	var v domain.VoucherGift
	if err := db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// TransitionVoucherStatus moves a PENDING voucher to next with a conditional
// update. Repeating a transition that already happened is a no-op; any other
// move out of a terminal state returns ErrInvalidTransition.
func TransitionVoucherStatus(ctx context.Context, db *gorm.DB, id string, next domain.Status, reason string) error {
	if !domain.StatusPending.CanTransition(next) {
		return ErrInvalidTransition
	}
	updates := map[string]any{"status": next}
	if next == domain.StatusFailed {
		updates["failure_reason"] = reason
	}
	res := db.WithContext(ctx).Model(&domain.VoucherGift{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var cur domain.VoucherGift
	if err := db.WithContext(ctx).Select("id", "status").First(&cur, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if cur.Status == next {
		return nil
	}
	return ErrInvalidTransition
}

// CountVouchersByStatus returns how many vouchers are in each status.
func CountVouchersByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	type row struct {
		Status domain.Status
		N      int64
	}
	var rows []row
	if err := db.WithContext(ctx).Model(&domain.VoucherGift{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[domain.Status]int64{
		domain.StatusPending: 0,
		domain.StatusSent:    0,
		domain.StatusFailed:  0,
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
