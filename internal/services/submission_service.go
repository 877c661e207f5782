// Package services – SubmissionService
//
// This file implements the voucher gift submission workflow:
//
//  1. resolve the idempotency key (a replay returns the stored voucher with no
//     side effects);
//  2. validate and normalize the request;
//  3. persist the voucher, its outbox entry and the idempotency mapping in one
//     transaction. A key claimed concurrently by another request rolls the
//     voucher back and serves that request's voucher instead; any other
//     mapping failure only degrades future dedup;
//  5. publish the delivery message and mark the outbox entry published.
//
// A publish failure fails the request, but the outbox entry stays pending and
// FlushOutbox republishes it later, so no voucher is left PENDING without a
// delivery trigger.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/repo"
)

// Publisher enqueues delivery messages. queue.Queue implements it.
type Publisher interface {
	Publish(ctx context.Context, body []byte) (string, error)
}

// SubmitResult is the outcome of a submission.
type SubmitResult struct {
	Voucher        *domain.VoucherGift
	IsHighValue    bool
	IdempotencyKey string
	// Idempotent is true when the voucher was returned from a previous
	// submission with the same key.
	Idempotent bool
}

// SubmissionService creates voucher gifts.
type SubmissionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Queue receives delivery messages.
	Queue Publisher
	// Validator checks and normalizes requests.
	Validator *Validator
	// IdempotencyTTL is how long a key maps to its voucher.
	IdempotencyTTL time.Duration

	Now func() time.Time
}

// NewSubmissionService returns a service with a 7-day idempotency window.
func NewSubmissionService(db *gorm.DB, q Publisher, v *Validator) *SubmissionService {
	if v == nil {
		v = NewValidator(DefaultLimits())
	}
	return &SubmissionService{
		DB:             db,
		Queue:          q,
		Validator:      v,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *SubmissionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Submit runs the workflow for a raw JSON body. headerKey is the value of the
// Idempotency-Key header, if any; the body's idempotencyKey takes precedence
// and the two must agree when both are present.
func (s *SubmissionService) Submit(ctx context.Context, body []byte, headerKey string) (*SubmitResult, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Submit")
	defer span.End()

	lg := zerolog.Ctx(ctx)

	raw, err := DecodeBody(body)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "body", Message: "Request body must be a JSON object"}}}
	}

	key, err := resolveKey(raw, headerKey)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("idempotency.key_present", key != ""))

	// 1. Idempotency resolution.
	if key != "" {
		if res, err := s.replay(ctx, lg, key); err != nil || res != nil {
			if res != nil {
				span.SetAttributes(attribute.Bool("idempotency.replay", true))
			}
			return res, err
		}
		raw["idempotencyKey"] = key
	}

	// 2. Validation.
	req, err := s.Validator.ValidateMap(raw)
	if err != nil {
		return nil, err
	}

	// 3. Creation.
	email, wallet := req.Recipient.Columns()
	now := s.now()
	v := &domain.VoucherGift{
		ID:             uuid.NewString(),
		RecipientEmail: email,
		WalletAddress:  wallet,
		Amount:         req.Amount,
		Message:        req.Message,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	span.SetAttributes(
		attribute.String("voucher.id", v.ID),
		attribute.String("recipient.kind", string(req.Recipient.Kind())),
	)

	payload, err := domain.NewDeliveryMessage(v).Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: encode delivery message: %w", ErrPersistFailed, err)
	}

	// 4+5. Persistence and idempotency commit: voucher, outbox entry and key
	// mapping share one transaction.
	entry := &domain.OutboxEntry{
		ID:        uuid.NewString(),
		Payload:   string(payload),
		Status:    domain.OutboxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	clientKey := req.IdempotencyKey != ""
	if !clientKey {
		req.IdempotencyKey = uuid.NewString()
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateVoucherWithOutbox(ctx, tx, v, entry); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
		_, kerr := repo.ClaimIdempotencyKey(ctx, tx, req.IdempotencyKey, v.ID, now, s.IdempotencyTTL)
		switch {
		case kerr == nil:
		case clientKey && errors.Is(kerr, repo.ErrDuplicate):
			// A concurrent submission with this key won the race.
			return errKeyClaimed
		default:
			lg.Warn().Err(kerr).Str("voucher_id", v.ID).Msg("idempotency save failed")
		}
		return nil
	})
	if errors.Is(err, errKeyClaimed) {
		res, rerr := s.replay(ctx, lg, req.IdempotencyKey)
		if rerr != nil {
			return nil, rerr
		}
		if res == nil {
			return nil, fmt.Errorf("%w: idempotency key claimed but not readable", ErrPersistFailed)
		}
		span.SetAttributes(attribute.Bool("idempotency.replay", true))
		return res, nil
	}
	if err != nil {
		if !errors.Is(err, ErrPersistFailed) {
			err = fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
		return nil, err
	}

	// 6. Publish.
	if err := s.publish(ctx, entry); err != nil {
		lg.Error().Err(err).Str("voucher_id", v.ID).Msg("delivery publish failed; outbox entry left pending")
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return &SubmitResult{
		Voucher:        v,
		IsHighValue:    s.Validator.Limits.IsHighValue(v.Amount),
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

// replay returns the stored voucher for key, or (nil, nil) when the caller
// should go on with a normal submission. Idempotency store errors are logged
// and treated as a miss.
func (s *SubmissionService) replay(ctx context.Context, lg *zerolog.Logger, key string) (*SubmitResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, key, s.now())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			lg.Warn().Err(err).Msg("idempotency lookup failed")
		}
		return nil, nil
	}

	v, err := repo.GetVoucher(ctx, s.DB, rec.ResourceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			lg.Warn().Str("voucher_id", rec.ResourceID).Msg("idempotency record points at a missing voucher")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	return &SubmitResult{
		Voucher:        v,
		IsHighValue:    s.Validator.Limits.IsHighValue(v.Amount),
		IdempotencyKey: key,
		Idempotent:     true,
	}, nil
}

func (s *SubmissionService) publish(ctx context.Context, e *domain.OutboxEntry) error {
	msgID, err := s.Queue.Publish(ctx, []byte(e.Payload))
	if err != nil {
		if rerr := repo.RecordOutboxFailure(ctx, s.DB, e.VoucherID, err.Error()); rerr != nil {
			zerolog.Ctx(ctx).Warn().Err(rerr).Str("voucher_id", e.VoucherID).Msg("outbox failure not recorded")
		}
		return err
	}
	if err := repo.MarkOutboxPublished(ctx, s.DB, e.VoucherID, msgID, s.now()); err != nil {
		// The message is out; a sweep may publish it again, which delivery
		// tolerates.
		zerolog.Ctx(ctx).Warn().Err(err).Str("voucher_id", e.VoucherID).Msg("outbox entry not marked published")
	}
	return nil
}

// FlushOutbox republishes pending outbox entries created before olderThan. It
// returns how many were published; a failing entry does not stop the others.
func (s *SubmissionService) FlushOutbox(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "FlushOutbox", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	entries, err := repo.ListPendingOutbox(ctx, s.DB, olderThan, limit)
	if err != nil {
		return 0, err
	}
	published := 0
	for i := range entries {
		if err := s.publish(ctx, &entries[i]); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("voucher_id", entries[i].VoucherID).Msg("outbox republish failed")
			continue
		}
		published++
	}
	span.SetAttributes(attribute.Int("outbox.pending", len(entries)), attribute.Int("outbox.published", published))
	return published, nil
}

// Get returns a voucher by id.
func (s *SubmissionService) Get(ctx context.Context, id string) (*domain.VoucherGift, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("voucher.id", id)))
	defer span.End()

	v, err := repo.GetVoucher(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrVoucherNotFound
	}
	return v, err
}

// resolveKey picks the idempotency key from the body or the header.
func resolveKey(raw map[string]any, headerKey string) (string, error) {
	headerKey = strings.TrimSpace(headerKey)
	bodyKey := ""
	switch k := raw["idempotencyKey"].(type) {
	case nil:
	case string:
		bodyKey = strings.TrimSpace(k)
	default:
		// Let the validator report the type error.
		return "", nil
	}
	switch {
	case bodyKey != "" && headerKey != "" && !strings.EqualFold(bodyKey, headerKey):
		return "", &ValidationError{Fields: []FieldError{{
			Field:   "idempotencyKey",
			Message: "Idempotency-Key header does not match body idempotencyKey",
		}}}
	case bodyKey != "":
		return strings.ToLower(bodyKey), nil
	default:
		return strings.ToLower(headerKey), nil
	}
}
