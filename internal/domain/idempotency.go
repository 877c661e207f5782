// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency maps a client idempotency key to the voucher created for it.
// Records are never mutated after creation; ExpiresAt drives the store's own
// retention (lookups ignore expired rows and the janitor purges them).
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_key"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
