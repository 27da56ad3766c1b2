package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucasrenata/order-up-point-sub000/internal/audit"
	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/lock"
	"github.com/lucasrenata/order-up-point-sub000/internal/settlement"
	"github.com/lucasrenata/order-up-point-sub000/internal/stock"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

// Service settles tabs: payment validation, then stock, then the order write.
type Service struct {
	repo  store.Repository
	stock *stock.Ledger
	guard lock.Locker
	clock calendar.Clock
}

func New(repo store.Repository, stockLedger *stock.Ledger, guard lock.Locker, clock calendar.Clock) *Service {
	if guard == nil {
		guard = lock.NewLocal()
	}
	if stockLedger == nil {
		stockLedger = stock.NewLedger(repo, guard)
	}
	return &Service{
		repo:  repo,
		stock: stockLedger,
		guard: guard,
		clock: clock,
	}
}

type SettleResult struct {
	Order      domain.Order       `json:"order"`
	Settlement domain.Settlement  `json:"settlement"`
	Stock      domain.StockResult `json:"stock"`
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// SettleOrder pays an open tab. A second call for the same order while one is
// running fails with domain.ErrAlreadyProcessing. Once the guard is held the
// run is not cancelled by ctx; every store call is bounded by the repository
// timeout instead.
func (s *Service) SettleOrder(ctx context.Context, orderID string, req settlement.Request) (SettleResult, error) {
	if orderID == "" {
		return SettleResult{}, domain.NewValidationError("order_id", "required")
	}
	release, err := s.guard.TryAcquire(ctx, lock.SettlementKey(orderID))
	if err != nil {
		return SettleResult{}, err
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return SettleResult{}, err
	}
	if order.Status != domain.OrderStatusOpen {
		return SettleResult{}, domain.ErrOrderNotOpen
	}

	open, err := s.repo.ListOpenRegisters(ctx)
	if err != nil {
		return SettleResult{}, err
	}
	settled, err := settlement.Settle(*order, req, open)
	if err != nil {
		return SettleResult{}, err
	}

	stockResult, err := s.stock.ApplyStockDecrement(ctx, orderID, order.Lines)
	if err != nil {
		return SettleResult{}, err
	}

	updated, err := s.repo.UpdateOrder(ctx, orderID, domain.OrderSettlementUpdate{
		Status:     domain.OrderStatusSettled,
		Payable:    settled.Payable,
		Tender:     settled.Tender,
		Discount:   settled.Discount,
		RegisterID: settled.RegisterID,
		PaidAt:     s.clock.Now(),
	})
	if err != nil {
		if revertErr := s.revertStock(ctx, orderID, stockResult, err); revertErr != nil {
			return SettleResult{}, unrevertedStock(err, stockResult, revertErr)
		}
		if errors.Is(err, store.ErrConflict) {
			return SettleResult{}, domain.ErrOrderNotOpen
		}
		return SettleResult{}, fmt.Errorf("mark order settled: %w", err)
	}

	audit.Log(ctx, "order_settle", "order", orderID, func(e *zerolog.Event) {
		e.Str("register_id", settled.RegisterID).
			Str("tender", settled.Tender.Name()).
			Str("payable", settled.Payable.StringFixed(2)).
			Str("discount", settled.Discount.Amount.StringFixed(2)).
			Int("stock_updates", len(stockResult.Updates))
	})

	return SettleResult{Order: *updated, Settlement: settled, Stock: stockResult}, nil
}

func (s *Service) revertStock(ctx context.Context, orderID string, applied domain.StockResult, cause error) error {
	if len(applied.Updates) == 0 {
		return nil
	}
	if err := s.stock.Revert(ctx, applied.Updates); err != nil {
		log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("order_id", orderID).
			Bool("manual_reconciliation", true).
			Msg("order not settled and stock could not be restored")
		return err
	}
	log.Warn().Err(cause).Str("order_id", orderID).Msg("order not settled, stock restored")
	return nil
}

// unrevertedStock reports an order left open with its stock still taken.
func unrevertedStock(cause error, applied domain.StockResult, revertErr error) *domain.PartialFailureError {
	decremented := make([]string, 0, len(applied.Updates))
	for _, u := range applied.Updates {
		decremented = append(decremented, u.ProductID)
	}
	return &domain.PartialFailureError{
		Cause:           fmt.Errorf("mark order settled: %w", cause),
		Decremented:     decremented,
		Compensated:     false,
		CompensationErr: revertErr,
	}
}
