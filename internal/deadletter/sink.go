// Package deadletter stores delivery messages that will not be retried again,
// either in the database (DBSink) or on a Kafka topic (KafkaSink).
package deadletter

import (
	"context"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// Failure types recorded on dead letters.
const (
	// FailureTypeTransient is used when transient errors exhausted the
	// receive budget.
	FailureTypeTransient = "transient"
	// FailureTypePermanent is used for non-retryable delivery failures.
	FailureTypePermanent = "permanent"
	// FailureTypeMalformed is used for bodies that could not be decoded.
	FailureTypeMalformed = "malformed"
)

// Sink accepts dead letters.
type Sink interface {
	Write(ctx context.Context, d *domain.DeadLetter) error
}

// Counter is implemented by sinks that can report how many records they hold.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Lister is implemented by sinks that can read back what they stored.
type Lister interface {
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}
