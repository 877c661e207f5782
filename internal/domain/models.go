// Package domain defines the persistence models for voucher gifts and the
// supporting records (idempotency keys, outbox entries, queued delivery
// messages, dead letters). These types are mapped with GORM and shared across
// the repository, queue, and service layers.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the delivery state of a voucher gift.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool { return s == StatusSent || s == StatusFailed }

// CanTransition reports whether moving from s to next is a forward step.
// Only PENDING may move, and only to a terminal status.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// VoucherGift is a request to transfer an amount to a single recipient,
// identified either by email or by wallet address.
//
// Fields:
//   - ID: UUID primary key, immutable.
//   - RecipientEmail / WalletAddress: exactly one is set at creation.
//   - Amount: bounded positive value, stored as decimal.
//   - Message: optional free text.
//   - Status: PENDING until the delivery consumer moves it to SENT or FAILED.
//   - FailureReason: last delivery error for FAILED vouchers.
type VoucherGift struct {
	ID             string          `json:"id"                       gorm:"type:char(36);primaryKey"`
	RecipientEmail string          `json:"recipientEmail,omitempty" gorm:"type:varchar(320);not null;default:''"`
	WalletAddress  string          `json:"walletAddress,omitempty"  gorm:"type:varchar(255);not null;default:''"`
	Amount         decimal.Decimal `json:"amount"                   gorm:"type:decimal(12,2);not null"`
	Message        string          `json:"message,omitempty"        gorm:"type:text;not null;default:''"`
	Status         Status          `json:"status"                   gorm:"type:varchar(16);not null;index;check:status IN ('PENDING','SENT','FAILED')"`
	FailureReason  string          `json:"failureReason,omitempty"  gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// TableName returns the database table name for VoucherGift.
func (VoucherGift) TableName() string { return "voucher_gifts" }

// RecipientKind names a delivery channel.
type RecipientKind string

const (
	RecipientEmail  RecipientKind = "email"
	RecipientWallet RecipientKind = "wallet"
)

// Errors returned by NewRecipient.
var (
	ErrNoRecipient        = errors.New("either recipientEmail or walletAddress must be provided")
	ErrAmbiguousRecipient = errors.New("only one of recipientEmail or walletAddress may be provided")
)

// Recipient is a tagged union: an email address or a wallet address, never
// both. The zero value is not a valid recipient.
type Recipient struct {
	kind    RecipientKind
	address string
}

// EmailRecipient builds an email recipient.
func EmailRecipient(addr string) Recipient { return Recipient{kind: RecipientEmail, address: addr} }

// WalletRecipient builds a wallet recipient.
func WalletRecipient(addr string) Recipient { return Recipient{kind: RecipientWallet, address: addr} }

// NewRecipient picks the single non-blank channel out of the two storage
// columns.
func NewRecipient(email, wallet string) (Recipient, error) {
	email, wallet = strings.TrimSpace(email), strings.TrimSpace(wallet)
	switch {
	case email != "" && wallet != "":
		return Recipient{}, ErrAmbiguousRecipient
	case email != "":
		return EmailRecipient(email), nil
	case wallet != "":
		return WalletRecipient(wallet), nil
	}
	return Recipient{}, ErrNoRecipient
}

func (r Recipient) Kind() RecipientKind { return r.kind }
func (r Recipient) Address() string     { return r.address }

// Columns splits the recipient back into the (email, wallet) storage pair.
func (r Recipient) Columns() (email, wallet string) {
	switch r.kind {
	case RecipientEmail:
		return r.address, ""
	case RecipientWallet:
		return "", r.address
	}
	return "", ""
}
