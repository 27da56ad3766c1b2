// Package register manages the cash registers ("caixas"): opening and closing
// them, recording manual movements and folding sales and movements into a
// running balance.
package register

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/audit"
	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

const minOperatorNameLength = 3

// DefaultNoteThreshold is the withdrawal amount above which a note is required.
var DefaultNoteThreshold = decimal.NewFromInt(100)

type Ledger struct {
	repo          store.Repository
	clock         calendar.Clock
	noteThreshold decimal.Decimal
}

func NewLedger(repo store.Repository, clock calendar.Clock, noteThreshold decimal.Decimal) *Ledger {
	if !noteThreshold.IsPositive() {
		noteThreshold = DefaultNoteThreshold
	}
	return &Ledger{repo: repo, clock: clock, noteThreshold: noteThreshold}
}

type OpenRequest struct {
	Number       int
	OperatorName string
	OpeningFloat decimal.Decimal
}

type ReservationPayment struct {
	RegisterID string
	Amount     decimal.Decimal
	Tender     domain.TenderType
	PayerName  string
	Note       string
}

func (l *Ledger) Open(ctx context.Context, req OpenRequest) (domain.CashRegister, error) {
	name := strings.TrimSpace(req.OperatorName)
	if utf8.RuneCountInString(name) < minOperatorNameLength {
		return domain.CashRegister{}, domain.NewValidationError("operator_name", fmt.Sprintf("must have at least %d characters", minOperatorNameLength))
	}
	if req.OpeningFloat.IsNegative() {
		return domain.CashRegister{}, domain.NewValidationError("opening_float", "must not be negative")
	}
	if !domain.ValidRegisterNumber(req.Number) {
		return domain.CashRegister{}, domain.NewValidationError("number", fmt.Sprintf("register %d does not exist", req.Number))
	}

	open, err := l.repo.ListOpenRegisters(ctx)
	if err != nil {
		return domain.CashRegister{}, err
	}
	for _, r := range open {
		if r.Number == req.Number {
			return domain.CashRegister{}, domain.NewValidationError("number", fmt.Sprintf("register %d is already open", req.Number))
		}
	}

	created, err := l.repo.CreateRegister(ctx, domain.CashRegister{
		Number:       req.Number,
		OperatorName: name,
		OpeningFloat: req.OpeningFloat.Round(2),
		Status:       domain.RegisterStatusOpen,
		OpenedAt:     l.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.CashRegister{}, domain.NewValidationError("number", fmt.Sprintf("register %d is already open", req.Number))
		}
		return domain.CashRegister{}, err
	}

	audit.Log(ctx, "register_open", "register", created.ID, func(e *zerolog.Event) {
		e.Int("number", created.Number).Str("operator", created.OperatorName).Str("opening_float", created.OpeningFloat.StringFixed(2))
	})
	return *created, nil
}

// Close moves an open register to closed. History is kept.
func (l *Ledger) Close(ctx context.Context, registerID string) (domain.CashRegister, domain.RegisterBalance, error) {
	if _, err := l.requireOpen(ctx, registerID); err != nil {
		return domain.CashRegister{}, domain.RegisterBalance{}, err
	}
	balance, err := l.ComputeBalance(ctx, registerID)
	if err != nil {
		return domain.CashRegister{}, domain.RegisterBalance{}, err
	}

	closedAt := l.clock.Now()
	closed, err := l.repo.UpdateRegister(ctx, registerID, domain.RegisterUpdate{
		Status:   domain.RegisterStatusClosed,
		ClosedAt: &closedAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.CashRegister{}, domain.RegisterBalance{}, domain.ErrRegisterClosed
		}
		return domain.CashRegister{}, domain.RegisterBalance{}, err
	}

	audit.Log(ctx, "register_close", "register", registerID, func(e *zerolog.Event) {
		e.Int("orders", balance.OrdersCount).Str("balance", balance.Balance.StringFixed(2))
	})
	return *closed, balance, nil
}

func (l *Ledger) ListOpen(ctx context.Context) ([]domain.CashRegister, error) {
	return l.repo.ListOpenRegisters(ctx)
}

// RecordWithdrawal takes cash out of an open register. Amounts above the note
// threshold need a note, and the amount may not exceed the cash available:
// opening float plus cash received minus earlier withdrawals.
func (l *Ledger) RecordWithdrawal(ctx context.Context, registerID string, amount decimal.Decimal, note string) (domain.CashMovement, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return domain.CashMovement{}, err
	}
	note = strings.TrimSpace(note)
	if amount.GreaterThan(l.noteThreshold) && note == "" {
		return domain.CashMovement{}, domain.NewValidationError("note",
			fmt.Sprintf("withdrawals above %s require a note", l.noteThreshold.StringFixed(2)))
	}
	if _, err := l.requireOpen(ctx, registerID); err != nil {
		return domain.CashMovement{}, err
	}

	balance, err := l.ComputeBalance(ctx, registerID)
	if err != nil {
		return domain.CashMovement{}, err
	}
	available := AvailableForWithdrawal(balance)
	if amount.GreaterThan(available) {
		return domain.CashMovement{}, domain.NewValidationError("amount",
			fmt.Sprintf("withdrawal %s exceeds available %s", amount.StringFixed(2), available.StringFixed(2)))
	}

	return l.insert(ctx, domain.CashMovement{
		RegisterID: registerID,
		Kind:       domain.MovementWithdrawal,
		Amount:     amount,
		Note:       note,
	})
}

func (l *Ledger) RecordDeposit(ctx context.Context, registerID string, amount decimal.Decimal, note string) (domain.CashMovement, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if _, err := l.requireOpen(ctx, registerID); err != nil {
		return domain.CashMovement{}, err
	}
	return l.insert(ctx, domain.CashMovement{
		RegisterID: registerID,
		Kind:       domain.MovementDeposit,
		Amount:     amount,
		Note:       strings.TrimSpace(note),
	})
}

func (l *Ledger) RecordReservationPayment(ctx context.Context, req ReservationPayment) (domain.CashMovement, error) {
	amount, err := positiveAmount(req.Amount)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if !req.Tender.Valid() {
		return domain.CashMovement{}, domain.NewValidationError("tender", "invalid tender type")
	}
	payer := strings.TrimSpace(req.PayerName)
	if payer == "" {
		return domain.CashMovement{}, domain.NewValidationError("payer_name", "required")
	}
	if _, err := l.requireOpen(ctx, req.RegisterID); err != nil {
		return domain.CashMovement{}, err
	}
	return l.insert(ctx, domain.CashMovement{
		RegisterID: req.RegisterID,
		Kind:       domain.MovementReservationPayment,
		Amount:     amount,
		Tender:     req.Tender,
		PayerName:  payer,
		Note:       strings.TrimSpace(req.Note),
	})
}

// ComputeBalance re-reads the register's settled orders and movements.
func (l *Ledger) ComputeBalance(ctx context.Context, registerID string) (domain.RegisterBalance, error) {
	register, err := l.repo.GetRegister(ctx, registerID)
	if err != nil {
		return domain.RegisterBalance{}, err
	}
	orders, err := l.repo.ListOrdersByRegister(ctx, registerID, domain.OrderStatusSettled)
	if err != nil {
		return domain.RegisterBalance{}, err
	}
	movements, err := l.repo.ListMovementsByRegister(ctx, registerID, "")
	if err != nil {
		return domain.RegisterBalance{}, err
	}
	return Fold(*register, orders, movements), nil
}

// SalesByTender returns what the register took per tender type, settled
// orders and reservation payments together.
func (l *Ledger) SalesByTender(ctx context.Context, registerID string) (domain.TenderTotals, error) {
	balance, err := l.ComputeBalance(ctx, registerID)
	if err != nil {
		return domain.TenderTotals{}, err
	}
	var totals domain.TenderTotals
	for _, t := range domain.TenderTypes() {
		totals.Add(t, balance.SalesByTender.Get(t))
		totals.Add(t, balance.ReservationByTender.Get(t))
	}
	return totals, nil
}

// Fold aggregates orders and movements into a balance. Split tenders are
// expanded so one order may feed several buckets.
func Fold(register domain.CashRegister, orders []domain.Order, movements []domain.CashMovement) domain.RegisterBalance {
	balance := domain.RegisterBalance{
		RegisterID:       register.ID,
		OpeningFloat:     register.OpeningFloat,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
	}

	for _, order := range orders {
		if order.Status != domain.OrderStatusSettled {
			continue
		}
		if order.Tender == nil {
			log.Warn().Str("order_id", order.ID).Str("register_id", register.ID).Msg("settled order without tender skipped")
			continue
		}
		balance.OrdersCount++
		for _, part := range order.Tender.Parts() {
			if !part.Type.Valid() {
				log.Warn().Str("order_id", order.ID).Int("tender", int(part.Type)).Msg("unknown tender skipped")
				continue
			}
			balance.SalesByTender.Add(part.Type, part.Amount)
		}
	}

	for _, m := range movements {
		switch m.Kind {
		case domain.MovementWithdrawal:
			balance.TotalWithdrawals = balance.TotalWithdrawals.Add(m.Amount)
		case domain.MovementDeposit:
			balance.TotalDeposits = balance.TotalDeposits.Add(m.Amount)
		case domain.MovementReservationPayment:
			if m.Tender.Valid() {
				balance.ReservationByTender.Add(m.Tender, m.Amount)
			}
		}
	}

	balance.CashBucket = balance.SalesByTender.Get(domain.TenderCash).Add(balance.ReservationByTender.Get(domain.TenderCash))
	balance.Balance = balance.OpeningFloat.
		Add(balance.CashBucket).
		Add(balance.TotalDeposits).
		Sub(balance.TotalWithdrawals)
	return balance
}

// AvailableForWithdrawal is opening float plus cash taken minus withdrawals.
// Deposits are not counted.
func AvailableForWithdrawal(balance domain.RegisterBalance) decimal.Decimal {
	return balance.OpeningFloat.Add(balance.CashBucket).Sub(balance.TotalWithdrawals)
}

func (l *Ledger) requireOpen(ctx context.Context, registerID string) (*domain.CashRegister, error) {
	if strings.TrimSpace(registerID) == "" {
		return nil, domain.NewValidationError("register_id", "required")
	}
	register, err := l.repo.GetRegister(ctx, registerID)
	if err != nil {
		return nil, err
	}
	if !register.IsOpen() {
		return nil, domain.ErrRegisterClosed
	}
	return register, nil
}

func (l *Ledger) insert(ctx context.Context, movement domain.CashMovement) (domain.CashMovement, error) {
	movement.CreatedAt = l.clock.Now()
	saved, err := l.repo.InsertCashMovement(ctx, movement)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.CashMovement{}, domain.ErrRegisterClosed
		}
		return domain.CashMovement{}, err
	}
	audit.Log(ctx, "cash_"+string(saved.Kind), "register", saved.RegisterID, func(e *zerolog.Event) {
		e.Str("movement_id", saved.ID).Str("amount", saved.Amount.StringFixed(2))
	})
	return *saved, nil
}

func positiveAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, domain.NewValidationError("amount", "must be greater than zero")
	}
	return amount, nil
}
