package stock

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/lock"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

// Ledger applies inventory decrements for settled tabs. When the repository
// implements store.ConditionalStockWriter each product is checked and
// decremented in a single write; otherwise it falls back to absolute writes
// of the stock read during the pre-check, which can over-decrement when two
// tills race on the same product.
type Ledger struct {
	repo  store.Repository
	guard lock.Locker
}

func NewLedger(repo store.Repository, guard lock.Locker) *Ledger {
	if guard == nil {
		guard = lock.NewLocal()
	}
	return &Ledger{repo: repo, guard: guard}
}

type demand struct {
	productID string
	quantity  int
}

// aggregate sums quantities per product, skipping lines without a product,
// and returns them ordered by product id so writes happen in a stable order.
func aggregate(lines []domain.OrderLine) []demand {
	totals := make(map[string]int)
	for _, line := range lines {
		if line.ProductID == nil || *line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		totals[*line.ProductID] += line.Quantity
	}

	demands := make([]demand, 0, len(totals))
	for id, qty := range totals {
		demands = append(demands, demand{productID: id, quantity: qty})
	}
	slices.SortFunc(demands, func(a, b demand) int {
		if a.productID < b.productID {
			return -1
		}
		if a.productID > b.productID {
			return 1
		}
		return 0
	})
	return demands
}

// ApplyStockDecrement decrements stock for every product referenced by lines.
// A failed pre-check returns *domain.InsufficientStockError without writing.
// A write failure after some products were decremented is compensated and
// reported as *domain.PartialFailureError.
func (l *Ledger) ApplyStockDecrement(ctx context.Context, orderID string, lines []domain.OrderLine) (domain.StockResult, error) {
	release, err := l.guard.TryAcquire(ctx, lock.StockKey(orderID))
	if err != nil {
		return domain.StockResult{}, err
	}
	defer release()

	demands := aggregate(lines)
	if len(demands) == 0 {
		return domain.StockResult{Updates: []domain.StockUpdate{}}, nil
	}

	ids := make([]string, 0, len(demands))
	for _, d := range demands {
		ids = append(ids, d.productID)
	}
	products, err := l.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.StockResult{}, asPersistence("get products", err)
	}

	shortages := make([]domain.Shortage, 0)
	for _, d := range demands {
		product, ok := products[d.productID]
		if !ok {
			shortages = append(shortages, domain.Shortage{ProductID: d.productID, Required: d.quantity, Available: 0})
			continue
		}
		if product.Stock < d.quantity {
			shortages = append(shortages, domain.Shortage{ProductID: d.productID, Required: d.quantity, Available: product.Stock})
		}
	}
	if len(shortages) > 0 {
		return domain.StockResult{}, &domain.InsufficientStockError{Shortages: shortages}
	}

	var updates []domain.StockUpdate
	if cond, ok := l.repo.(store.ConditionalStockWriter); ok {
		updates, err = l.applyConditional(ctx, cond, demands, products)
	} else {
		updates, err = l.applyAbsolute(ctx, demands, products)
	}
	if err != nil {
		return domain.StockResult{}, err
	}

	result := domain.StockResult{Updates: updates}
	for _, alert := range result.LowStockAlerts() {
		log.Warn().
			Str("order_id", orderID).
			Str("product_id", alert.ProductID).
			Int("stock", alert.NewStock).
			Int("min_stock", products[alert.ProductID].MinStock).
			Msg("low stock")
	}
	return result, nil
}

func (l *Ledger) applyConditional(ctx context.Context, cond store.ConditionalStockWriter, demands []demand, products map[string]domain.Product) ([]domain.StockUpdate, error) {
	updates := make([]domain.StockUpdate, 0, len(demands))
	for _, d := range demands {
		remaining, err := cond.DecrementStockIfAvailable(ctx, d.productID, d.quantity)
		if err == nil {
			updates = append(updates, newUpdate(d, remaining+d.quantity, remaining, products[d.productID]))
			continue
		}
		if len(updates) == 0 && !errors.Is(err, store.ErrInsufficientStock) {
			return nil, asPersistence("decrement stock", err)
		}

		compErr := l.compensate(updates, func(u domain.StockUpdate) error {
			_, err := cond.IncrementStock(ctx, u.ProductID, u.Quantity)
			return err
		})
		if errors.Is(err, store.ErrInsufficientStock) && compErr == nil {
			// Stock moved between the pre-check and the write; nothing is left decremented.
			return nil, &domain.InsufficientStockError{Shortages: []domain.Shortage{
				{ProductID: d.productID, Required: d.quantity, Available: remaining},
			}}
		}
		return nil, partialFailure(err, updates, compErr)
	}
	return updates, nil
}

func (l *Ledger) applyAbsolute(ctx context.Context, demands []demand, products map[string]domain.Product) ([]domain.StockUpdate, error) {
	updates := make([]domain.StockUpdate, 0, len(demands))
	for _, d := range demands {
		product := products[d.productID]
		newStock := product.Stock - d.quantity
		if err := l.repo.UpdateProductStock(ctx, d.productID, newStock); err != nil {
			if len(updates) == 0 {
				return nil, asPersistence("update product stock", err)
			}
			compErr := l.compensate(updates, func(u domain.StockUpdate) error {
				return l.repo.UpdateProductStock(ctx, u.ProductID, u.PreviousStock)
			})
			return nil, partialFailure(err, updates, compErr)
		}
		updates = append(updates, newUpdate(d, product.Stock, newStock, product))
	}
	return updates, nil
}

// compensate restores every update and returns the first restore error.
func (l *Ledger) compensate(updates []domain.StockUpdate, restore func(domain.StockUpdate) error) error {
	var first error
	for _, u := range updates {
		if err := restore(u); err != nil {
			if first == nil {
				first = err
			}
			log.Error().
				Err(err).
				Str("product_id", u.ProductID).
				Int("previous_stock", u.PreviousStock).
				Int("quantity", u.Quantity).
				Bool("manual_reconciliation", true).
				Msg("stock compensation failed")
		}
	}
	return first
}

// Revert adds back the quantities of a previously applied decrement. It is
// used when the tab could not be marked settled after stock was written.
func (l *Ledger) Revert(ctx context.Context, updates []domain.StockUpdate) error {
	cond, conditional := l.repo.(store.ConditionalStockWriter)

	var errs []error
	for _, u := range updates {
		var err error
		if conditional {
			_, err = cond.IncrementStock(ctx, u.ProductID, u.Quantity)
		} else {
			var product *domain.Product
			product, err = l.repo.GetProduct(ctx, u.ProductID)
			if err == nil {
				err = l.repo.UpdateProductStock(ctx, u.ProductID, product.Stock+u.Quantity)
			}
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("product_id", u.ProductID).
				Int("quantity", u.Quantity).
				Bool("manual_reconciliation", true).
				Msg("stock revert failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newUpdate(d demand, previous int, next int, product domain.Product) domain.StockUpdate {
	return domain.StockUpdate{
		ProductID:     d.productID,
		Quantity:      d.quantity,
		PreviousStock: previous,
		NewStock:      next,
		LowStock:      next <= product.MinStock,
	}
}

func partialFailure(cause error, applied []domain.StockUpdate, compErr error) *domain.PartialFailureError {
	decremented := make([]string, 0, len(applied))
	for _, u := range applied {
		decremented = append(decremented, u.ProductID)
	}
	pf := &domain.PartialFailureError{
		Cause:           cause,
		Decremented:     decremented,
		Compensated:     compErr == nil,
		CompensationErr: compErr,
	}
	if pf.Fatal() {
		log.Error().
			Err(cause).
			Strs("product_ids", decremented).
			AnErr("compensation_error", compErr).
			Bool("manual_reconciliation", true).
			Msg("stock left inconsistent after failed settlement")
	}
	return pf
}

func asPersistence(op string, err error) error {
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
