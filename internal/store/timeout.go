package store

import (
	"context"
	"errors"
	"time"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// WithTimeout bounds every call on repo and reports infrastructure failures,
// including timeouts, as *domain.PersistenceError. Store sentinels and domain
// errors pass through unchanged. The returned repository also implements
// ConditionalStockWriter when repo does.
func WithTimeout(repo Repository, timeout time.Duration) Repository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := &timed{inner: repo, timeout: timeout}
	if cond, ok := repo.(ConditionalStockWriter); ok {
		return &timedConditional{timed: base, cond: cond}
	}
	return base
}

type timed struct {
	inner   Repository
	timeout time.Duration
}

func call[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil {
		if callCtx.Err() != nil && !errors.Is(err, callCtx.Err()) {
			err = errors.Join(err, callCtx.Err())
		}
		var zero T
		return zero, classify(op, err)
	}
	return result, nil
}

func classify(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrConflict) {
		return err
	}
	var validation *domain.ValidationError
	var persistence *domain.PersistenceError
	if errors.As(err, &validation) || errors.As(err, &persistence) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

func (t *timed) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return call(ctx, t.timeout, "get product", func(ctx context.Context) (*domain.Product, error) {
		return t.inner.GetProduct(ctx, id)
	})
}

func (t *timed) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return call(ctx, t.timeout, "get products", func(ctx context.Context) (map[string]domain.Product, error) {
		return t.inner.GetProductsByIDs(ctx, ids)
	})
}

func (t *timed) UpdateProductStock(ctx context.Context, id string, newStock int) error {
	_, err := call(ctx, t.timeout, "update product stock", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.inner.UpdateProductStock(ctx, id, newStock)
	})
	return err
}

func (t *timed) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return call(ctx, t.timeout, "get order", func(ctx context.Context) (*domain.Order, error) {
		return t.inner.GetOrder(ctx, id)
	})
}

func (t *timed) UpdateOrder(ctx context.Context, id string, update domain.OrderSettlementUpdate) (*domain.Order, error) {
	return call(ctx, t.timeout, "update order", func(ctx context.Context) (*domain.Order, error) {
		return t.inner.UpdateOrder(ctx, id, update)
	})
}

func (t *timed) ListOrdersByRegister(ctx context.Context, registerID string, status string) ([]domain.Order, error) {
	return call(ctx, t.timeout, "list orders by register", func(ctx context.Context) ([]domain.Order, error) {
		return t.inner.ListOrdersByRegister(ctx, registerID, status)
	})
}

func (t *timed) ListSettledOrdersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	return call(ctx, t.timeout, "list settled orders", func(ctx context.Context) ([]domain.Order, error) {
		return t.inner.ListSettledOrdersBetween(ctx, from, to)
	})
}

func (t *timed) CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	return call(ctx, t.timeout, "create register", func(ctx context.Context) (*domain.CashRegister, error) {
		return t.inner.CreateRegister(ctx, register)
	})
}

func (t *timed) GetRegister(ctx context.Context, id string) (*domain.CashRegister, error) {
	return call(ctx, t.timeout, "get register", func(ctx context.Context) (*domain.CashRegister, error) {
		return t.inner.GetRegister(ctx, id)
	})
}

func (t *timed) ListOpenRegisters(ctx context.Context) ([]domain.CashRegister, error) {
	return call(ctx, t.timeout, "list open registers", func(ctx context.Context) ([]domain.CashRegister, error) {
		return t.inner.ListOpenRegisters(ctx)
	})
}

func (t *timed) UpdateRegister(ctx context.Context, id string, update domain.RegisterUpdate) (*domain.CashRegister, error) {
	return call(ctx, t.timeout, "update register", func(ctx context.Context) (*domain.CashRegister, error) {
		return t.inner.UpdateRegister(ctx, id, update)
	})
}

func (t *timed) InsertCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	return call(ctx, t.timeout, "insert cash movement", func(ctx context.Context) (*domain.CashMovement, error) {
		return t.inner.InsertCashMovement(ctx, movement)
	})
}

func (t *timed) ListMovementsByRegister(ctx context.Context, registerID string, kind domain.MovementKind) ([]domain.CashMovement, error) {
	return call(ctx, t.timeout, "list movements", func(ctx context.Context) ([]domain.CashMovement, error) {
		return t.inner.ListMovementsByRegister(ctx, registerID, kind)
	})
}

func (t *timed) CountSweepCandidates(ctx context.Context, cutoff time.Time) (SweepCounts, error) {
	return call(ctx, t.timeout, "count sweep candidates", func(ctx context.Context) (SweepCounts, error) {
		return t.inner.CountSweepCandidates(ctx, cutoff)
	})
}

func (t *timed) DeleteSettledOrdersOfClosedRegistersThrough(ctx context.Context, cutoff time.Time) (int, error) {
	return call(ctx, t.timeout, "delete settled orders", func(ctx context.Context) (int, error) {
		return t.inner.DeleteSettledOrdersOfClosedRegistersThrough(ctx, cutoff)
	})
}

func (t *timed) DeleteMovementsOfClosedRegistersThrough(ctx context.Context, cutoff time.Time) (int, error) {
	return call(ctx, t.timeout, "delete movements", func(ctx context.Context) (int, error) {
		return t.inner.DeleteMovementsOfClosedRegistersThrough(ctx, cutoff)
	})
}

type timedConditional struct {
	*timed
	cond ConditionalStockWriter
}

func (t *timedConditional) DecrementStockIfAvailable(ctx context.Context, id string, qty int) (int, error) {
	return call(ctx, t.timeout, "decrement stock", func(ctx context.Context) (int, error) {
		return t.cond.DecrementStockIfAvailable(ctx, id, qty)
	})
}

func (t *timedConditional) IncrementStock(ctx context.Context, id string, qty int) (int, error) {
	return call(ctx, t.timeout, "increment stock", func(ctx context.Context) (int, error) {
		return t.cond.IncrementStock(ctx, id, qty)
	})
}
