package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
)

// SplitBuilder assembles a split tender one entry at a time. Each entry is
// clamped to what is still owed, so the running sum never exceeds payable.
type SplitBuilder struct {
	payable decimal.Decimal
	entries []domain.PaymentSplit
}

func NewSplitBuilder(payable decimal.Decimal) *SplitBuilder {
	return &SplitBuilder{payable: payable.Round(2), entries: make([]domain.PaymentSplit, 0, 4)}
}

// Add appends an entry and returns the amount actually granted, which is
// min(requested, remaining). An entry that would be clamped to zero is rejected.
func (b *SplitBuilder) Add(t domain.TenderType, requested decimal.Decimal) (decimal.Decimal, error) {
	if !t.Valid() {
		return decimal.Zero, domain.NewValidationError("splits", fmt.Sprintf("invalid tender type %d", int(t)))
	}
	requested = requested.Round(2)
	if !requested.IsPositive() {
		return decimal.Zero, domain.NewValidationError("splits", "split amount must be positive")
	}
	remaining := b.Remaining()
	if !remaining.IsPositive() {
		return decimal.Zero, domain.NewValidationError("splits", "split already covers the payable total")
	}

	granted := decimal.Min(requested, remaining)
	b.entries = append(b.entries, domain.PaymentSplit{Type: t, Amount: granted})
	return granted, nil
}

// Remove drops the entry at index; the remainder is recomputed on the next Add.
func (b *SplitBuilder) Remove(index int) error {
	if index < 0 || index >= len(b.entries) {
		return domain.NewValidationError("splits", fmt.Sprintf("no split at position %d", index))
	}
	b.entries = append(b.entries[:index], b.entries[index+1:]...)
	return nil
}

func (b *SplitBuilder) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range b.entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func (b *SplitBuilder) Remaining() decimal.Decimal {
	remaining := b.payable.Sub(b.Sum())
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (b *SplitBuilder) Complete() bool {
	return len(b.entries) > 0 && b.Sum().GreaterThanOrEqual(b.payable)
}

func (b *SplitBuilder) Entries() []domain.PaymentSplit {
	out := make([]domain.PaymentSplit, len(b.entries))
	copy(out, b.entries)
	return out
}

// Tender returns the split tender, refusing while the split is incomplete.
func (b *SplitBuilder) Tender() (domain.Tender, error) {
	if !b.Complete() {
		return domain.Tender{}, domain.NewValidationError("splits",
			fmt.Sprintf("split incomplete: %s of %s remaining", b.Remaining().StringFixed(2), b.payable.StringFixed(2)))
	}
	return domain.SplitTender(b.entries), nil
}
