// Package settlement turns an open tab plus the operator's discount and
// tender choices into the payment record to persist. It performs no I/O.
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
)

type TenderInput struct {
	Split    bool
	Type     domain.TenderType
	Received *decimal.Decimal
	// Splits are requested amounts, replayed in order through a SplitBuilder.
	Splits []domain.PaymentSplit
}

type Request struct {
	Discount domain.Discount
	Tender   TenderInput
	// RegisterID is the operator's choice; it may be empty when exactly one
	// register is open.
	RegisterID string
}

// ResolveDiscount returns the applied discount and the resulting payable.
func ResolveDiscount(subtotal decimal.Decimal, d domain.Discount) (domain.AppliedDiscount, decimal.Decimal, error) {
	applied, err := d.Resolve(subtotal)
	if err != nil {
		return domain.AppliedDiscount{}, decimal.Zero, err
	}
	return applied, subtotal.Sub(applied.Amount).Round(2), nil
}

// ResolveSingle builds a one-type tender for the full payable. Cash needs the
// received amount and yields change; other types ignore received.
func ResolveSingle(t domain.TenderType, payable decimal.Decimal, received *decimal.Decimal) (domain.Tender, error) {
	if !t.Valid() {
		return domain.Tender{}, domain.NewValidationError("tender", fmt.Sprintf("invalid tender type %d", int(t)))
	}
	tender := domain.SingleTender(t, payable)
	if t != domain.TenderCash {
		return tender, nil
	}

	if received == nil {
		return domain.Tender{}, domain.NewValidationError("received", "cash tender requires the received amount")
	}
	got := received.Round(2)
	if got.LessThan(payable) {
		return domain.Tender{}, domain.NewValidationError("received",
			fmt.Sprintf("received %s is less than payable %s", got.StringFixed(2), payable.StringFixed(2)))
	}
	tender.Received = &got
	tender.Change = decimal.Max(got.Sub(payable), decimal.Zero)
	return tender, nil
}

// SelectRegister picks the register a settlement is attributed to.
func SelectRegister(open []domain.CashRegister, chosen string) (domain.CashRegister, error) {
	if len(open) == 0 {
		return domain.CashRegister{}, domain.ErrNoOpenRegister
	}
	if chosen == "" {
		if len(open) == 1 {
			return open[0], nil
		}
		return domain.CashRegister{}, domain.NewValidationError("register_id", "more than one register is open, choose one")
	}
	for _, r := range open {
		if r.ID == chosen {
			return r, nil
		}
	}
	return domain.CashRegister{}, fmt.Errorf("register %s: %w", chosen, domain.ErrRegisterClosed)
}

// Settle validates the request against the order and open registers.
func Settle(order domain.Order, req Request, open []domain.CashRegister) (domain.Settlement, error) {
	if order.Status != domain.OrderStatusOpen {
		return domain.Settlement{}, domain.ErrOrderNotOpen
	}
	if len(order.Lines) == 0 {
		return domain.Settlement{}, domain.NewValidationError("lines", "order has no lines")
	}
	for _, line := range order.Lines {
		if line.Quantity < 1 {
			return domain.Settlement{}, domain.NewValidationError("lines",
				fmt.Sprintf("line %q has quantity %d, must be at least 1", line.ID, line.Quantity))
		}
	}

	subtotal := order.Subtotal()
	applied, payable, err := ResolveDiscount(subtotal, req.Discount)
	if err != nil {
		return domain.Settlement{}, err
	}

	var tender domain.Tender
	if req.Tender.Split {
		tender, err = resolveSplit(payable, req.Tender.Splits)
	} else {
		tender, err = ResolveSingle(req.Tender.Type, payable, req.Tender.Received)
	}
	if err != nil {
		return domain.Settlement{}, err
	}

	register, err := SelectRegister(open, req.RegisterID)
	if err != nil {
		return domain.Settlement{}, err
	}

	return domain.Settlement{
		OrderID:    order.ID,
		Subtotal:   subtotal,
		Discount:   applied,
		Payable:    payable,
		Tender:     tender,
		RegisterID: register.ID,
	}, nil
}

func resolveSplit(payable decimal.Decimal, requested []domain.PaymentSplit) (domain.Tender, error) {
	if len(requested) == 0 {
		return domain.Tender{}, domain.NewValidationError("splits", "split tender needs at least one entry")
	}
	builder := NewSplitBuilder(payable)
	for i, entry := range requested {
		if _, err := builder.Add(entry.Type, entry.Amount); err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return domain.Tender{}, domain.NewValidationError(fmt.Sprintf("splits[%d]", i), ve.Reason)
			}
			return domain.Tender{}, err
		}
	}
	return builder.Tender()
}
