package domain

import "time"

// QueueMessage is a row of the database-backed delivery queue. A message is
// visible to consumers once VisibleAt has passed; receiving it pushes
// VisibleAt forward by the visibility timeout and rotates Receipt, so only the
// latest receiver can acknowledge it.
type QueueMessage struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	Queue        string    `gorm:"type:varchar(64);not null;index:idx_queue_visible,priority:1"`
	Body         string    `gorm:"type:text;not null"`
	ReceiveCount int       `gorm:"not null;default:0"`
	Receipt      string    `gorm:"type:varchar(64);not null;default:''"`
	VisibleAt    time.Time `gorm:"not null;index:idx_queue_visible,priority:2"`
	CreatedAt    time.Time
}

// TableName returns the database table name for QueueMessage.
func (QueueMessage) TableName() string { return "queue_messages" }

// DeadLetter is a delivery message that will not be retried again.
type DeadLetter struct {
	ID           string    `json:"id"           gorm:"type:char(36);primaryKey"`
	MessageID    string    `json:"messageId"    gorm:"type:varchar(128);not null;default:''"`
	VoucherID    string    `json:"voucherId"    gorm:"type:varchar(64);not null;default:'';index"`
	Body         string    `json:"body"         gorm:"type:text;not null"`
	FailureType  string    `json:"failureType"  gorm:"type:varchar(16);not null"`
	Reason       string    `json:"reason"       gorm:"type:text;not null;default:''"`
	ReceiveCount int       `json:"receiveCount" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt"    gorm:"index"`
}

// TableName returns the database table name for DeadLetter.
func (DeadLetter) TableName() string { return "dead_letters" }
