// Package queue implements the at-least-once delivery queue. A received
// message stays invisible to other consumers for a visibility window; if it is
// not acknowledged in time it becomes visible again and its receive count
// grows. Two drivers exist: a GORM table (SQLQueue) and Amazon SQS (SQSQueue).
package queue

import (
	"context"
	"errors"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// ErrStaleReceipt is returned by Ack when the receipt no longer matches the
// message (it was received again by someone else, or already deleted).
var ErrStaleReceipt = errors.New("queue: stale receipt")

// Message is one received delivery message.
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int
	Receipt      string
}

// Queue is the delivery transport contract.
type Queue interface {
	// Publish enqueues body and returns the transport message id.
	Publish(ctx context.Context, body []byte) (string, error)
	// Receive returns up to max visible messages, hiding each for the
	// visibility window and incrementing its receive count.
	Receive(ctx context.Context, max int) ([]Message, error)
	// Ack removes a received message for good.
	Ack(ctx context.Context, m Message) error
}

// DepthReporter is implemented by queues that can count what they hold.
type DepthReporter interface {
	Depth(ctx context.Context) (int64, error)
}

// DeadLetterWriter receives messages the transport gives up on. It is
// satisfied by deadletter.Sink.
type DeadLetterWriter interface {
	Write(ctx context.Context, d *domain.DeadLetter) error
}
