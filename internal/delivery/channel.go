package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// Gift is what a channel needs to hand over a voucher.
type Gift struct {
	VoucherID string
	Recipient domain.Recipient
	Amount    decimal.Decimal
	Message   string
}

// GiftFromMessage converts a decoded delivery message.
func GiftFromMessage(m *domain.DeliveryMessage) (Gift, error) {
	r, err := m.Recipient()
	if err != nil {
		return Gift{}, WrapPermanent(err)
	}
	return Gift{VoucherID: m.VoucherID, Recipient: r, Amount: m.Amount, Message: m.Message}, nil
}

// Channel delivers a gift to one kind of recipient.
type Channel interface {
	Kind() domain.RecipientKind
	Deliver(ctx context.Context, g Gift) error
}

// SendFunc is an optional hook that performs a real send. Channels only log
// when it is nil.
type SendFunc func(ctx context.Context, g Gift) error

// EmailChannel notifies the recipient by email.
type EmailChannel struct {
	Logger zerolog.Logger
	Send   SendFunc
}

// NewEmailChannel returns an EmailChannel that logs through logger.
func NewEmailChannel(logger zerolog.Logger) *EmailChannel {
	return &EmailChannel{Logger: logger}
}

func (c *EmailChannel) Kind() domain.RecipientKind { return domain.RecipientEmail }

// Deliver sends the voucher notification email.
func (c *EmailChannel) Deliver(ctx context.Context, g Gift) error {
	if g.Recipient.Kind() != domain.RecipientEmail {
		return WrapPermanent(fmt.Errorf("email channel: unexpected recipient kind %q", g.Recipient.Kind()))
	}
	if !strings.Contains(g.Recipient.Address(), "@") {
		return WrapPermanent(fmt.Errorf("email channel: malformed address"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Send != nil {
		if err := c.Send(ctx, g); err != nil {
			return err
		}
	}
	ev := c.Logger.Info().
		Str("voucher_id", g.VoucherID).
		Str("channel", string(domain.RecipientEmail)).
		Str("to", g.Recipient.Address()).
		Str("amount", g.Amount.StringFixed(2))
	if g.Message != "" {
		ev = ev.Str("gift_message", g.Message)
	}
	ev.Msg("voucher gift email sent")
	return nil
}

// WalletChannel transfers the voucher to a wallet address.
type WalletChannel struct {
	Logger zerolog.Logger
	Send   SendFunc
}

// NewWalletChannel returns a WalletChannel that logs through logger.
func NewWalletChannel(logger zerolog.Logger) *WalletChannel {
	return &WalletChannel{Logger: logger}
}

func (c *WalletChannel) Kind() domain.RecipientKind { return domain.RecipientWallet }

// Deliver performs the wallet transfer.
func (c *WalletChannel) Deliver(ctx context.Context, g Gift) error {
	if g.Recipient.Kind() != domain.RecipientWallet {
		return WrapPermanent(fmt.Errorf("wallet channel: unexpected recipient kind %q", g.Recipient.Kind()))
	}
	if strings.ContainsAny(g.Recipient.Address(), " \t\r\n") {
		return WrapPermanent(fmt.Errorf("wallet channel: malformed address"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Send != nil {
		if err := c.Send(ctx, g); err != nil {
			return err
		}
	}
	ev := c.Logger.Info().
		Str("voucher_id", g.VoucherID).
		Str("channel", string(domain.RecipientWallet)).
		Str("wallet", g.Recipient.Address()).
		Str("amount", g.Amount.StringFixed(2))
	if g.Message != "" {
		ev = ev.Str("gift_message", g.Message)
	}
	ev.Msg("voucher gift sent to wallet")
	return nil
}

// ErrNoChannel is returned when no channel is registered for a recipient kind.
var ErrNoChannel = errors.New("no delivery channel for recipient")

// Dispatcher routes a gift to the channel registered for its recipient kind.
type Dispatcher struct {
	channels map[domain.RecipientKind]Channel
}

// NewDispatcher registers channels by their Kind. Later channels replace
// earlier ones of the same kind.
func NewDispatcher(channels ...Channel) *Dispatcher {
	d := &Dispatcher{channels: make(map[domain.RecipientKind]Channel, len(channels))}
	for _, c := range channels {
		if c != nil {
			d.channels[c.Kind()] = c
		}
	}
	return d
}

// Deliver dispatches g. A missing channel is permanent.
func (d *Dispatcher) Deliver(ctx context.Context, g Gift) error {
	c, ok := d.channels[g.Recipient.Kind()]
	if !ok {
		return WrapPermanent(fmt.Errorf("%w %q", ErrNoChannel, g.Recipient.Kind()))
	}
	return c.Deliver(ctx, g)
}
