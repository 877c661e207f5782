package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingVoucherID is returned when a delivery message has no voucher id.
var ErrMissingVoucherID = errors.New("delivery message: voucherId is required")

// DeliveryMessage is the queued payload that triggers delivery of one voucher.
// It copies the fields needed to deliver so the consumer does not have to
// re-read the record first.
type DeliveryMessage struct {
	VoucherID      string          `json:"voucherId"`
	RecipientEmail string          `json:"recipientEmail,omitempty"`
	WalletAddress  string          `json:"walletAddress,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Message        string          `json:"message,omitempty"`
}

// NewDeliveryMessage builds the message for a persisted voucher.
func NewDeliveryMessage(v *VoucherGift) DeliveryMessage {
	return DeliveryMessage{
		VoucherID:      v.ID,
		RecipientEmail: v.RecipientEmail,
		WalletAddress:  v.WalletAddress,
		Amount:         v.Amount,
		Message:        v.Message,
	}
}

// Recipient returns the delivery target carried by the message.
func (m DeliveryMessage) Recipient() (Recipient, error) {
	return NewRecipient(m.RecipientEmail, m.WalletAddress)
}

// Encode serializes the message as a queue body.
func (m DeliveryMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeDeliveryMessage parses a queue body. A body without a voucher id is
// rejected.
func DecodeDeliveryMessage(body []byte) (DeliveryMessage, error) {
	var m DeliveryMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return DeliveryMessage{}, fmt.Errorf("delivery message: %w", err)
	}
	m.VoucherID = strings.TrimSpace(m.VoucherID)
	if m.VoucherID == "" {
		return DeliveryMessage{}, ErrMissingVoucherID
	}
	return m, nil
}
