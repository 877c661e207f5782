package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		VoucherGift{}.TableName():  "voucher_gifts",
		Idempotency{}.TableName():  "idempotency",
		OutboxEntry{}.TableName():  "outbox_entries",
		QueueMessage{}.TableName(): "queue_messages",
		DeadLetter{}.TableName():   "dead_letters",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSent, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, false},
		{StatusSent, StatusFailed, false},
		{StatusFailed, StatusSent, false},
		{StatusSent, StatusPending, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	if StatusPending.IsTerminal() || !StatusSent.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatalf("unexpected IsTerminal results")
	}
	if Status("RETRYING").CanTransition(StatusSent) || StatusPending.CanTransition(Status("RETRYING")) {
		t.Fatalf("RETRYING is not part of the state machine")
	}
}

func TestNewRecipient(t *testing.T) {
	r, err := NewRecipient(" a@b.com ", "")
	if err != nil || r.Kind() != RecipientEmail || r.Address() != "a@b.com" {
		t.Fatalf("email recipient: %+v %v", r, err)
	}
	r, err = NewRecipient("", "0xabc")
	if err != nil || r.Kind() != RecipientWallet || r.Address() != "0xabc" {
		t.Fatalf("wallet recipient: %+v %v", r, err)
	}
	if _, err := NewRecipient("  ", ""); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if _, err := NewRecipient("a@b.com", "0xabc"); !errors.Is(err, ErrAmbiguousRecipient) {
		t.Fatalf("expected ErrAmbiguousRecipient, got %v", err)
	}

	email, wallet := WalletRecipient("0xdef").Columns()
	if email != "" || wallet != "0xdef" {
		t.Fatalf("Columns() = %q,%q", email, wallet)
	}
	if email, wallet := (Recipient{}).Columns(); email != "" || wallet != "" {
		t.Fatalf("zero recipient should map to empty columns")
	}
}

func TestVoucherGift_Migration_AndAmountRoundTrip(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&VoucherGift{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	v := &VoucherGift{
		ID:             "v-1",
		RecipientEmail: "a@b.com",
		Amount:         decimal.RequireFromString("100.25"),
		Status:         StatusPending,
	}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got VoucherGift
	if err := db.First(&got, "id = ?", "v-1").Error; err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.Amount.Equal(v.Amount) {
		t.Fatalf("amount = %s want %s", got.Amount, v.Amount)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by GORM")
	}

	// Unknown statuses are rejected by the CHECK constraint.
	bad := &VoucherGift{ID: "v-2", WalletAddress: "w", Amount: decimal.NewFromInt(1), Status: Status("RETRYING")}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK constraint violation for unknown status")
	}

	b, _ := json.Marshal(got)
	if !strings.Contains(string(b), `"amount":100.25`) {
		t.Fatalf("amount should marshal as a JSON number: %s", b)
	}
}
