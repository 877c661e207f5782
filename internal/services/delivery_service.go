// Package services – DeliveryService
//
// This file implements the delivery consumer. For every queued delivery
// message it performs the delivery side effect through a delivery.Dispatcher
// and reconciles the voucher status:
//
//   - success moves the voucher to SENT;
//   - a transient failure below the receive ceiling is returned as an error so
//     the queue redelivers the message after its visibility window;
//   - a transient failure at the ceiling, or any non-retryable failure, moves
//     the voucher to FAILED and writes a dead letter.
//
// Status writes are compare-and-swap updates (repo.TransitionVoucherStatus),
// so duplicate or racing deliveries cannot move a terminal voucher again.
package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-voucher-gift/internal/deadletter"
	"github.com/tbourn/go-voucher-gift/internal/delivery"
	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/queue"
	"github.com/tbourn/go-voucher-gift/internal/repo"
)

// Outcome is what happened to one delivery message.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeRetry     Outcome = "retry"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDropped   Outcome = "dropped"
)

// Handled reports whether the message can be acknowledged.
func (o Outcome) Handled() bool { return o != OutcomeRetry }

// Deliverer performs the delivery side effect. *delivery.Dispatcher
// implements it.
type Deliverer interface {
	Deliver(ctx context.Context, g delivery.Gift) error
}

// DeliveryService processes delivery messages.
type DeliveryService struct {
	// DB is the GORM handle used for status updates.
	DB *gorm.DB
	// Channel performs the side effect.
	Channel Deliverer
	// DeadLetters receives terminally failed messages. Optional.
	DeadLetters deadletter.Sink
	// Metrics collects counters. Optional.
	Metrics *DeliveryMetrics
	// Limiter paces delivery attempts across all workers. Optional.
	Limiter *rate.Limiter

	// MaxAttempts is the receive count at which transient failures stop
	// being retried. Values <= 0 default to 3.
	MaxAttempts int
	// Concurrency bounds ProcessBatch parallelism. Values <= 0 default to 1.
	Concurrency int

	Logger zerolog.Logger
	Now    func() time.Time
}

// NewDeliveryService returns a service with defaults for limits and clock.
func NewDeliveryService(db *gorm.DB, ch Deliverer, dlq deadletter.Sink, m *DeliveryMetrics, logger zerolog.Logger) *DeliveryService {
	if m == nil {
		m = NewDeliveryMetrics(nil)
	}
	return &DeliveryService{
		DB:          db,
		Channel:     ch,
		DeadLetters: dlq,
		Metrics:     m,
		MaxAttempts: 3,
		Concurrency: 1,
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *DeliveryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *DeliveryService) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return 3
	}
	return s.MaxAttempts
}

func (s *DeliveryService) metrics() *DeliveryMetrics {
	if s.Metrics == nil {
		s.Metrics = NewDeliveryMetrics(nil)
	}
	return s.Metrics
}

// BatchFailure is a message that must be redelivered.
type BatchFailure struct {
	MessageID string
	Err       error
}

// BatchResult splits a batch into messages to acknowledge and messages to
// leave for redelivery.
type BatchResult struct {
	Handled  []queue.Message
	Failures []BatchFailure
}

// ProcessBatch processes msgs with per-message isolation: one message failing
// or panicking never stops the others. Up to Concurrency messages run at once.
func (s *DeliveryService) ProcessBatch(ctx context.Context, msgs []queue.Message) BatchResult {
	tr := otel.Tracer("services/DeliveryService")
	ctx, span := tr.Start(ctx, "ProcessBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(msgs))),
	)
	defer span.End()

	n := s.Concurrency
	if n <= 0 {
		n = 1
	}
	sem := semaphore.NewWeighted(int64(n))

	type result struct {
		outcome Outcome
		err     error
	}
	results := make([]result, len(msgs))

	var wg sync.WaitGroup
	for i := range msgs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context done: leave the rest for redelivery.
			for j := i; j < len(msgs); j++ {
				results[j] = result{OutcomeRetry, err}
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if rec := recover(); rec != nil {
					s.Logger.Error().
						Interface("panic", rec).
						Bytes("stack", debug.Stack()).
						Str("message_id", msgs[i].ID).
						Msg("delivery panic recovered")
					results[i] = result{OutcomeRetry, fmt.Errorf("panic: %v", rec)}
				}
			}()
			o, err := s.ProcessMessage(ctx, msgs[i])
			results[i] = result{o, err}
		}(i)
	}
	wg.Wait()

	var out BatchResult
	for i, r := range results {
		if r.err != nil || !r.outcome.Handled() {
			out.Failures = append(out.Failures, BatchFailure{MessageID: msgs[i].ID, Err: r.err})
			continue
		}
		out.Handled = append(out.Handled, msgs[i])
	}
	span.SetAttributes(
		attribute.Int("batch.handled", len(out.Handled)),
		attribute.Int("batch.failures", len(out.Failures)),
	)
	return out
}

// ProcessMessage runs one message through delivery. A non-nil error means the
// message must not be acknowledged.
func (s *DeliveryService) ProcessMessage(ctx context.Context, m queue.Message) (outcome Outcome, err error) {
	tr := otel.Tracer("services/DeliveryService")
	ctx, span := tr.Start(ctx, "ProcessMessage",
		trace.WithAttributes(
			attribute.String("message.id", m.ID),
			attribute.Int("message.receive_count", m.ReceiveCount),
		),
	)
	start := time.Now()
	defer func() {
		s.metrics().observe(outcome, time.Since(start))
		span.SetAttributes(attribute.String("delivery.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lg := s.Logger.With().Str("message_id", m.ID).Int("receive_count", m.ReceiveCount).Logger()

	msg, derr := domain.DecodeDeliveryMessage(m.Body)
	if derr != nil {
		return s.handleMalformed(ctx, lg, m, derr)
	}
	lg = lg.With().Str("voucher_id", msg.VoucherID).Logger()
	span.SetAttributes(attribute.String("voucher.id", msg.VoucherID))

	gift, gerr := delivery.GiftFromMessage(&msg)
	if gerr != nil {
		return s.fail(ctx, lg, m, msg.VoucherID, gerr, deadletter.FailureTypePermanent)
	}

	if s.Limiter != nil {
		if werr := s.Limiter.Wait(ctx); werr != nil {
			return OutcomeRetry, werr
		}
	}

	if derr := s.Channel.Deliver(ctx, gift); derr != nil {
		if delivery.IsTransient(derr) {
			if m.ReceiveCount < s.maxAttempts() {
				s.metrics().retry(derr.Error(), s.now())
				lg.Warn().Err(derr).Msg("transient delivery failure, will retry")
				return OutcomeRetry, derr
			}
			lg.Error().Err(derr).Int("max_attempts", s.maxAttempts()).Msg("delivery retries exhausted")
			o, ferr := s.fail(ctx, lg, m, msg.VoucherID, derr, deadletter.FailureTypeTransient)
			if ferr == nil {
				o = OutcomeExhausted
			}
			return o, ferr
		}
		return s.fail(ctx, lg, m, msg.VoucherID, derr, deadletter.FailureTypePermanent)
	}

	switch terr := repo.TransitionVoucherStatus(ctx, s.DB, msg.VoucherID, domain.StatusSent, ""); {
	case terr == nil:
	case errors.Is(terr, ErrInvalidTransition):
		lg.Warn().Msg("voucher already in a terminal state, skipping SENT")
		return OutcomeSkipped, nil
	case errors.Is(terr, repo.ErrNotFound):
		lg.Error().Msg("delivered voucher not found")
		return s.fail(ctx, lg, m, msg.VoucherID, fmt.Errorf("%w: %s", ErrVoucherNotFound, msg.VoucherID), deadletter.FailureTypePermanent)
	default:
		return OutcomeRetry, fmt.Errorf("mark sent: %w", terr)
	}

	s.metrics().success(msg.VoucherID, s.now())
	lg.Info().Msg("voucher gift delivered")
	return OutcomeSent, nil
}

// handleMalformed marks the voucher FAILED when an id can still be read out of
// the body, and dead-letters the message either way.
func (s *DeliveryService) handleMalformed(ctx context.Context, lg zerolog.Logger, m queue.Message, cause error) (Outcome, error) {
	voucherID := ""
	if gjson.ValidBytes(m.Body) {
		voucherID = gjson.GetBytes(m.Body, "voucherId").String()
	}
	lg.Error().Err(cause).Str("voucher_id", voucherID).Msg("undecodable delivery message")

	if voucherID == "" {
		s.metrics().failure(cause.Error(), s.now())
		s.writeDeadLetter(ctx, lg, m, "", cause, deadletter.FailureTypeMalformed)
		return OutcomeDropped, nil
	}
	return s.fail(ctx, lg, m, voucherID, cause, deadletter.FailureTypeMalformed)
}

// fail moves the voucher to FAILED and dead-letters the message. It only
// returns an error when the status write itself failed, so the message is
// kept for another attempt.
func (s *DeliveryService) fail(ctx context.Context, lg zerolog.Logger, m queue.Message, voucherID string, cause error, failureType string) (Outcome, error) {
	reason := cause.Error()
	terr := repo.TransitionVoucherStatus(ctx, s.DB, voucherID, domain.StatusFailed, reason)
	switch {
	case terr == nil:
		lg.Error().Err(cause).Str("failure_type", failureType).Msg("voucher delivery failed")
	case errors.Is(terr, ErrInvalidTransition):
		lg.Warn().Err(cause).Msg("voucher already in a terminal state, skipping FAILED")
		return OutcomeSkipped, nil
	case errors.Is(terr, repo.ErrNotFound):
		lg.Warn().Msg("failed voucher not found")
	default:
		return OutcomeRetry, fmt.Errorf("mark failed: %w", terr)
	}

	s.metrics().failure(reason, s.now())
	s.writeDeadLetter(ctx, lg, m, voucherID, cause, failureType)
	return OutcomeFailed, nil
}

func (s *DeliveryService) writeDeadLetter(ctx context.Context, lg zerolog.Logger, m queue.Message, voucherID string, cause error, failureType string) {
	if s.DeadLetters == nil {
		return
	}
	d := &domain.DeadLetter{
		MessageID:    m.ID,
		VoucherID:    voucherID,
		Body:         string(m.Body),
		FailureType:  failureType,
		Reason:       cause.Error(),
		ReceiveCount: m.ReceiveCount,
		CreatedAt:    s.now(),
	}
	if err := s.DeadLetters.Write(ctx, d); err != nil {
		lg.Error().Err(err).Msg("dead letter write failed")
		return
	}
	s.metrics().deadLetter()
}
