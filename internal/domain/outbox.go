package domain

import "time"

// OutboxStatus tracks whether an outbox entry reached the delivery queue.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
)

// OutboxEntry is written in the same transaction as its voucher and holds the
// encoded delivery message until it has been published.
type OutboxEntry struct {
	ID          string       `gorm:"type:char(36);primaryKey"`
	VoucherID   string       `gorm:"type:char(36);not null;uniqueIndex"`
	Payload     string       `gorm:"type:text;not null"`
	Status      OutboxStatus `gorm:"type:varchar(16);not null;index:idx_outbox_pending,priority:1"`
	Attempts    int          `gorm:"not null;default:0"`
	LastError   string       `gorm:"type:text;not null;default:''"`
	MessageID   string       `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt   time.Time    `gorm:"index:idx_outbox_pending,priority:2"`
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// TableName returns the database table name for OutboxEntry.
func (OutboxEntry) TableName() string { return "outbox_entries" }
