package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-voucher-gift/internal/queue"
	"github.com/tbourn/go-voucher-gift/internal/services"
)

// BatchProcessor is satisfied by services.DeliveryService.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, msgs []queue.Message) services.BatchResult
}

// Poller pulls delivery messages off the queue and hands them to the
// delivery consumer. Handled messages are acknowledged; the rest stay on the
// queue and reappear after the visibility timeout.
type Poller struct {
	Queue     queue.Queue
	Processor BatchProcessor
	BatchSize int
	// MaxRounds bounds how many full batches one Poll drains.
	MaxRounds int
	Logger    zerolog.Logger
}

// PollResult summarizes one Poll.
type PollResult struct {
	Received int
	Acked    int
	Retried  int
}

// Poll receives batches until one comes back short or MaxRounds is reached.
func (p *Poller) Poll(ctx context.Context) (PollResult, error) {
	size := p.BatchSize
	if size <= 0 {
		size = 10
	}
	rounds := p.MaxRounds
	if rounds <= 0 {
		rounds = 10
	}

	var res PollResult
	for i := 0; i < rounds; i++ {
		msgs, err := p.Queue.Receive(ctx, size)
		if err != nil {
			return res, err
		}
		if len(msgs) == 0 {
			break
		}
		res.Received += len(msgs)

		out := p.Processor.ProcessBatch(ctx, msgs)
		for _, m := range out.Handled {
			if err := p.Queue.Ack(ctx, m); err != nil {
				ev := p.Logger.Error()
				if queue.IsStaleReceipt(err) {
					ev = p.Logger.Warn()
				}
				ev.Err(err).Str("message_id", m.ID).Msg("ack failed")
				continue
			}
			res.Acked++
		}
		for _, f := range out.Failures {
			p.Logger.Debug().Err(f.Err).Str("message_id", f.MessageID).Msg("message left for redelivery")
		}
		res.Retried += len(out.Failures)

		if len(msgs) < size || ctx.Err() != nil {
			break
		}
	}
	if res.Received > 0 {
		p.Logger.Info().
			Int("received", res.Received).
			Int("acked", res.Acked).
			Int("retried", res.Retried).
			Msg("delivery poll")
	}
	return res, nil
}

// Job wraps Poll in a ticker job.
func (p *Poller) Job(interval time.Duration) *Job {
	return NewJob("delivery-poller", interval, func(ctx context.Context) error {
		_, err := p.Poll(ctx)
		return err
	}, p.Logger)
}
