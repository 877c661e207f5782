// Package services – Validator
//
// This file implements request validation for voucher gift submissions. The
// validator decodes an untyped JSON body, collects every violated rule (it
// does not stop at the first), and produces a canonical GiftRequest with a
// single recipient channel, a decimal amount, and normalized text.
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

// Limits bounds the gift amount.
type Limits struct {
	Min       decimal.Decimal
	Max       decimal.Decimal
	HighValue decimal.Decimal
}

// DefaultLimits returns 1 .. 10000 with confirmation required from 1000.
func DefaultLimits() Limits {
	return Limits{
		Min:       decimal.NewFromInt(1),
		Max:       decimal.NewFromInt(10000),
		HighValue: decimal.NewFromInt(1000),
	}
}

// IsHighValue reports whether amount needs explicit confirmation.
func (l Limits) IsHighValue(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(l.HighValue)
}

// GiftRequest is a validated, normalized submission.
type GiftRequest struct {
	Recipient        domain.Recipient
	Amount           decimal.Decimal
	Message          string
	IdempotencyKey   string
	ConfirmHighValue bool
}

// Validator checks raw gift submissions against Limits.
type Validator struct {
	Limits Limits

	validate *validator.Validate
	lower    cases.Caser
}

// NewValidator returns a Validator for limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{
		Limits:   limits,
		validate: validator.New(),
		lower:    cases.Lower(language.Und),
	}
}

// DecodeBody parses a JSON object keeping numbers as json.Number.
func DecodeBody(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("body must be a JSON object")
	}
	return raw, nil
}

// Validate decodes body and validates it. Failures are *ValidationError.
func (v *Validator) Validate(body []byte) (*GiftRequest, error) {
	raw, err := DecodeBody(body)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "body", Message: "Request body must be a JSON object"}}}
	}
	return v.ValidateMap(raw)
}

// ValidateMap validates an already decoded body. Numbers must be json.Number
// or float64.
func (v *Validator) ValidateMap(raw map[string]any) (*GiftRequest, error) {
	verr := &ValidationError{}
	req := &GiftRequest{}

	// amount
	amount, amountOK := v.amount(raw["amount"], verr)
	if amountOK {
		req.Amount = amount
	}

	// recipient
	email, emailSet := optionalString(raw, "recipientEmail", verr)
	if emailSet {
		email = v.lower.String(strings.TrimSpace(email))
		if email == "" {
			emailSet = false
		} else if err := v.validate.Var(email, "email"); err != nil {
			verr.add("recipientEmail", "Invalid email")
			emailSet = false
		}
	}
	wallet, walletSet := optionalString(raw, "walletAddress", verr)
	if walletSet {
		wallet = strings.TrimSpace(wallet)
		walletSet = wallet != ""
	}
	switch {
	case emailSet && walletSet:
		verr.add("recipient", "Only one of recipientEmail or walletAddress may be provided")
	case emailSet:
		req.Recipient = domain.EmailRecipient(email)
	case walletSet:
		req.Recipient = domain.WalletRecipient(wallet)
	default:
		if !verr.Has("recipientEmail") {
			verr.add("recipient", "Either recipientEmail or walletAddress must be provided")
		}
	}

	// message
	if msg, ok := optionalString(raw, "message", verr); ok {
		req.Message = norm.NFC.String(strings.TrimSpace(msg))
	}

	// idempotencyKey
	if key, ok := optionalString(raw, "idempotencyKey", verr); ok {
		key = strings.ToLower(strings.TrimSpace(key))
		if err := v.validate.Var(key, "required,uuid"); err != nil {
			verr.add("idempotencyKey", "Invalid uuid")
		} else {
			req.IdempotencyKey = key
		}
	}

	// confirmHighValue
	switch c := raw["confirmHighValue"].(type) {
	case nil:
	case bool:
		req.ConfirmHighValue = c
	default:
		verr.add("confirmHighValue", "Expected boolean")
	}
	if amountOK && v.Limits.IsHighValue(amount) && !req.ConfirmHighValue && !verr.Has("confirmHighValue") {
		verr.add("confirmHighValue",
			fmt.Sprintf("High-value vouchers ($%s+) require confirmation", v.Limits.HighValue.String()))
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return req, nil
}

func (v *Validator) amount(val any, verr *ValidationError) (decimal.Decimal, bool) {
	var (
		d   decimal.Decimal
		err error
	)
	switch n := val.(type) {
	case nil:
		verr.add("amount", "Amount is required")
		return d, false
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case float64:
		d = decimal.NewFromFloat(n)
	default:
		verr.add("amount", "Expected number")
		return d, false
	}
	if err != nil {
		verr.add("amount", "Expected number")
		return d, false
	}

	ok := true
	if !d.IsPositive() {
		verr.add("amount", "Amount must be a positive number")
		ok = false
	}
	if d.LessThan(v.Limits.Min) {
		verr.add("amount", fmt.Sprintf("Amount must be at least $%s", v.Limits.Min.String()))
		ok = false
	}
	if d.GreaterThan(v.Limits.Max) {
		verr.add("amount", fmt.Sprintf("Amount cannot exceed $%s", v.Limits.Max.String()))
		ok = false
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		verr.add("amount", "Amount must have at most 2 decimal places")
		ok = false
	}
	return d, ok
}

// optionalString returns (value, present). A present non-string value is
// recorded as a field error and reported as absent.
func optionalString(raw map[string]any, field string, verr *ValidationError) (string, bool) {
	val, ok := raw[field]
	if !ok || val == nil {
		return "", false
	}
	s, ok := val.(string)
	if !ok {
		verr.add(field, "Expected string")
		return "", false
	}
	return s, true
}
