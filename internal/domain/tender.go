package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type TenderType int

const (
	TenderCash TenderType = iota
	TenderDebitCard
	TenderCreditCard
	TenderPix
	TenderVoucher

	tenderTypeCount
)

// SplitTenderName is the wire name of a tender split across several types.
const SplitTenderName = "multiplo"

var tenderNames = [tenderTypeCount]string{
	TenderCash:       "dinheiro",
	TenderDebitCard:  "cartao_debito",
	TenderCreditCard: "cartao_credito",
	TenderPix:        "pix",
	TenderVoucher:    "vale",
}

// TenderTypes lists every tender type in report order.
func TenderTypes() []TenderType {
	types := make([]TenderType, 0, tenderTypeCount)
	for t := TenderType(0); t < tenderTypeCount; t++ {
		types = append(types, t)
	}
	return types
}

func ParseTenderType(name string) (TenderType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for t, candidate := range tenderNames {
		if candidate == normalized {
			return TenderType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown tender type %q", name)
}

func (t TenderType) Valid() bool {
	return t >= 0 && t < tenderTypeCount
}

func (t TenderType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tender(%d)", int(t))
	}
	return tenderNames[t]
}

func (t TenderType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tender type %d", int(t))
	}
	return []byte(tenderNames[t]), nil
}

func (t *TenderType) UnmarshalText(text []byte) error {
	parsed, err := ParseTenderType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TenderTotals accumulates one amount per tender type. It is a fixed array so
// that every tender has a bucket and an unknown key cannot drop a sale.
type TenderTotals [tenderTypeCount]decimal.Decimal

func (tt *TenderTotals) Add(t TenderType, amount decimal.Decimal) {
	tt[t] = tt[t].Add(amount)
}

func (tt TenderTotals) Get(t TenderType) decimal.Decimal {
	return tt[t]
}

func (tt TenderTotals) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range tt {
		total = total.Add(amount)
	}
	return total
}

func (tt TenderTotals) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, tenderTypeCount)
	for t, amount := range tt {
		out[tenderNames[t]] = amount
	}
	return out
}

func (tt TenderTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(tt.Map())
}

func (tt *TenderTotals) UnmarshalJSON(data []byte) error {
	var raw map[string]decimal.Decimal
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var parsed TenderTotals
	for name, amount := range raw {
		t, err := ParseTenderType(name)
		if err != nil {
			return err
		}
		parsed[t] = amount
	}
	*tt = parsed
	return nil
}

type PaymentSplit struct {
	Type   TenderType      `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type TenderKind string

const (
	TenderKindSingle TenderKind = "single"
	TenderKindSplit  TenderKind = "split"
)

// Tender is either Single(type, amount) or Split(ordered splits). Received
// and Change are only meaningful for a single cash tender.
type Tender struct {
	Kind     TenderKind
	Type     TenderType
	Amount   decimal.Decimal
	Received *decimal.Decimal
	Change   decimal.Decimal
	Splits   []PaymentSplit
}

func SingleTender(t TenderType, amount decimal.Decimal) Tender {
	return Tender{Kind: TenderKindSingle, Type: t, Amount: amount}
}

func SplitTender(splits []PaymentSplit) Tender {
	copied := make([]PaymentSplit, len(splits))
	copy(copied, splits)
	total := decimal.Zero
	for _, s := range copied {
		total = total.Add(s.Amount)
	}
	return Tender{Kind: TenderKindSplit, Amount: total, Splits: copied}
}

func (t Tender) IsSplit() bool {
	return t.Kind == TenderKindSplit
}

// Name is the stored tender representation: the single type or "multiplo".
func (t Tender) Name() string {
	if t.IsSplit() {
		return SplitTenderName
	}
	return t.Type.String()
}

// Parts expands the tender into per-type amounts.
func (t Tender) Parts() []PaymentSplit {
	if t.IsSplit() {
		parts := make([]PaymentSplit, len(t.Splits))
		copy(parts, t.Splits)
		return parts
	}
	return []PaymentSplit{{Type: t.Type, Amount: t.Amount}}
}

type tenderJSON struct {
	Type     string           `json:"type"`
	Amount   decimal.Decimal  `json:"amount"`
	Received *decimal.Decimal `json:"received,omitempty"`
	Change   *decimal.Decimal `json:"change,omitempty"`
	Splits   []PaymentSplit   `json:"splits,omitempty"`
}

func (t Tender) MarshalJSON() ([]byte, error) {
	payload := tenderJSON{Type: t.Name(), Amount: t.Amount, Received: t.Received}
	if t.IsSplit() {
		payload.Splits = t.Splits
	} else if t.Received != nil {
		change := t.Change
		payload.Change = &change
	}
	return json.Marshal(payload)
}

func (t *Tender) UnmarshalJSON(data []byte) error {
	var payload tenderJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if payload.Type == SplitTenderName {
		*t = SplitTender(payload.Splits)
		return nil
	}
	tt, err := ParseTenderType(payload.Type)
	if err != nil {
		return err
	}
	parsed := SingleTender(tt, payload.Amount)
	parsed.Received = payload.Received
	if payload.Change != nil {
		parsed.Change = *payload.Change
	}
	*t = parsed
	return nil
}

type DiscountKind string

const (
	DiscountNone    DiscountKind = ""
	DiscountAmount  DiscountKind = "amount"
	DiscountPercent DiscountKind = "percent"
)

// Discount is None, Amount(value) or Percent(value); Reason is free text.
type Discount struct {
	Kind   DiscountKind    `json:"kind"`
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason,omitempty"`
}

func NoDiscount() Discount {
	return Discount{Kind: DiscountNone}
}

func AmountDiscount(value decimal.Decimal, reason string) Discount {
	return Discount{Kind: DiscountAmount, Value: value, Reason: reason}
}

func PercentDiscount(value decimal.Decimal, reason string) Discount {
	return Discount{Kind: DiscountPercent, Value: value, Reason: reason}
}

var hundred = decimal.NewFromInt(100)

// Resolve validates the discount against a subtotal and returns the amount
// actually applied. An explicit discount that resolves to zero is rejected.
func (d Discount) Resolve(subtotal decimal.Decimal) (AppliedDiscount, error) {
	reason := strings.TrimSpace(d.Reason)
	switch d.Kind {
	case DiscountNone:
		return AppliedDiscount{Amount: decimal.Zero}, nil
	case DiscountPercent:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return AppliedDiscount{}, NewValidationError("discount", "percentage must be between 0 and 100")
		}
		amount := subtotal.Mul(d.Value).Div(hundred).Round(2)
		if !amount.IsPositive() {
			return AppliedDiscount{}, NewValidationError("discount", "discount resolves to zero")
		}
		percent := d.Value
		return AppliedDiscount{Amount: amount, Percent: &percent, Reason: reason}, nil
	case DiscountAmount:
		if d.Value.IsNegative() || d.Value.GreaterThan(subtotal) {
			return AppliedDiscount{}, NewValidationError("discount", "amount must be between 0 and the subtotal")
		}
		amount := d.Value.Round(2)
		if !amount.IsPositive() {
			return AppliedDiscount{}, NewValidationError("discount", "discount resolves to zero")
		}
		return AppliedDiscount{Amount: amount, Reason: reason}, nil
	default:
		return AppliedDiscount{}, NewValidationError("discount", fmt.Sprintf("unknown discount kind %q", d.Kind))
	}
}

type AppliedDiscount struct {
	Amount  decimal.Decimal  `json:"amount"`
	Percent *decimal.Decimal `json:"percent,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}
