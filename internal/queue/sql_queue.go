package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// FailureTypeRedrive marks dead letters moved by the transport after too many
// receives.
const FailureTypeRedrive = "redrive"

// SQLQueue is a Queue stored in the queue_messages table. Claims use a
// conditional update on (id, receipt, visible_at), so concurrent receivers
// never get the same message in the same window.
type SQLQueue struct {
	DB         *gorm.DB
	Name       string
	Visibility time.Duration
	// MaxReceives moves a message to DeadLetters instead of delivering it a
	// (MaxReceives+1)th time. Zero disables redrive.
	MaxReceives int
	DeadLetters DeadLetterWriter

	now func() time.Time
}

// NewSQLQueue returns a queue named name on db.
func NewSQLQueue(db *gorm.DB, name string, visibility time.Duration, maxReceives int, dlq DeadLetterWriter) *SQLQueue {
	if name == "" {
		name = "voucher-gifts"
	}
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &SQLQueue{
		DB:          db,
		Name:        name,
		Visibility:  visibility,
		MaxReceives: maxReceives,
		DeadLetters: dlq,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Publish implements Queue.
func (q *SQLQueue) Publish(ctx context.Context, body []byte) (string, error) {
	now := q.now()
	m := &domain.QueueMessage{
		ID:        uuid.NewString(),
		Queue:     q.Name,
		Body:      string(body),
		VisibleAt: now,
		CreatedAt: now,
	}
	if err := q.DB.WithContext(ctx).Create(m).Error; err != nil {
		return "", err
	}
	return m.ID, nil
}

// Receive implements Queue.
func (q *SQLQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	now := q.now()

	var candidates []domain.QueueMessage
	if err := q.DB.WithContext(ctx).
		Where("queue = ? AND visible_at <= ?", q.Name, now).
		Order("visible_at ASC").
		Limit(max).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(candidates))
	for _, c := range candidates {
		if q.MaxReceives > 0 && c.ReceiveCount >= q.MaxReceives {
			q.redrive(ctx, c)
			continue
		}

		receipt := uuid.NewString()
		res := q.DB.WithContext(ctx).Model(&domain.QueueMessage{}).
			Where("id = ? AND receipt = ? AND visible_at <= ?", c.ID, c.Receipt, now).
			Updates(map[string]any{
				"receive_count": gorm.Expr("receive_count + 1"),
				"receipt":       receipt,
				"visible_at":    now.Add(q.Visibility),
			})
		if res.Error != nil {
			return out, res.Error
		}
		if res.RowsAffected == 0 {
			// Claimed by another receiver.
			continue
		}
		out = append(out, Message{
			ID:           c.ID,
			Body:         []byte(c.Body),
			ReceiveCount: c.ReceiveCount + 1,
			Receipt:      receipt,
		})
	}
	return out, nil
}

func (q *SQLQueue) redrive(ctx context.Context, c domain.QueueMessage) {
	if q.DeadLetters != nil {
		d := &domain.DeadLetter{
			MessageID:    c.ID,
			VoucherID:    gjson.Get(c.Body, "voucherId").String(),
			Body:         c.Body,
			FailureType:  FailureTypeRedrive,
			Reason:       "maximum receive count reached",
			ReceiveCount: c.ReceiveCount,
			CreatedAt:    q.now(),
		}
		if err := q.DeadLetters.Write(ctx, d); err != nil {
			log.Error().Err(err).Str("message_id", c.ID).Msg("queue redrive: dead letter write failed")
			return
		}
	}
	res := q.DB.WithContext(ctx).
		Where("id = ? AND receipt = ?", c.ID, c.Receipt).
		Delete(&domain.QueueMessage{})
	if res.Error != nil {
		log.Error().Err(res.Error).Str("message_id", c.ID).Msg("queue redrive: delete failed")
		return
	}
	log.Warn().Str("message_id", c.ID).Int("receive_count", c.ReceiveCount).Msg("queue message redriven to dead letters")
}

// Ack implements Queue.
func (q *SQLQueue) Ack(ctx context.Context, m Message) error {
	res := q.DB.WithContext(ctx).
		Where("id = ? AND receipt = ?", m.ID, m.Receipt).
		Delete(&domain.QueueMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleReceipt
	}
	return nil
}

// Depth returns the number of messages in the queue, visible or not.
func (q *SQLQueue) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := q.DB.WithContext(ctx).Model(&domain.QueueMessage{}).Where("queue = ?", q.Name).Count(&n).Error
	return n, err
}

var (
	_ Queue         = (*SQLQueue)(nil)
	_ DepthReporter = (*SQLQueue)(nil)
)

// IsStaleReceipt reports whether err is ErrStaleReceipt.
func IsStaleReceipt(err error) bool { return errors.Is(err, ErrStaleReceipt) }
