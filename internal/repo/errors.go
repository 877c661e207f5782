package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation on insert.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation normalizes driver-specific unique violation errors.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}

// ErrInvalidTransition is returned when a status update would move a voucher
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")
