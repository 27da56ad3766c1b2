package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/lock"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
	"github.com/lucasrenata/order-up-point-sub000/internal/store/memory"
)

var errWrite = errors.New("write refused")

// absoluteRepo hides the conditional primitive of the memory store, counts
// absolute writes and fails the write to a product once it has been written
// failAfter[id] times.
type absoluteRepo struct {
	store.Repository
	writes    map[string]int
	failAfter map[string]int
}

func newAbsoluteRepo(s *memory.Store) *absoluteRepo {
	return &absoluteRepo{Repository: s, writes: map[string]int{}, failAfter: map[string]int{}}
}

func (r *absoluteRepo) UpdateProductStock(ctx context.Context, id string, newStock int) error {
	n := r.writes[id]
	r.writes[id] = n + 1
	if limit, ok := r.failAfter[id]; ok && n >= limit {
		return errWrite
	}
	return r.Repository.UpdateProductStock(ctx, id, newStock)
}

func (r *absoluteRepo) totalWrites() int {
	total := 0
	for _, n := range r.writes {
		total += n
	}
	return total
}

type conditionalRepo struct {
	*memory.Store
	decrements    int
	failDecrement map[string]error
	failIncrement map[string]error
	steal         map[string]int
}

func newConditionalRepo(s *memory.Store) *conditionalRepo {
	return &conditionalRepo{Store: s, failDecrement: map[string]error{}, failIncrement: map[string]error{}, steal: map[string]int{}}
}

func (r *conditionalRepo) DecrementStockIfAvailable(ctx context.Context, id string, qty int) (int, error) {
	r.decrements++
	if err, ok := r.failDecrement[id]; ok {
		return 0, err
	}
	if n, ok := r.steal[id]; ok {
		// Another till sells before our write lands.
		if _, err := r.Store.DecrementStockIfAvailable(ctx, id, n); err != nil {
			return 0, err
		}
	}
	return r.Store.DecrementStockIfAvailable(ctx, id, qty)
}

func (r *conditionalRepo) IncrementStock(ctx context.Context, id string, qty int) (int, error) {
	if err, ok := r.failIncrement[id]; ok {
		return 0, err
	}
	return r.Store.IncrementStock(ctx, id, qty)
}

func ptr(s string) *string { return &s }

func seed(stocks map[string]int) *memory.Store {
	s := memory.New()
	for id, stock := range stocks {
		s.PutProduct(domain.Product{ID: id, Name: id, Stock: stock, MinStock: 2, UnitPrice: decimal.NewFromInt(10)})
	}
	return s
}

func stockOf(t *testing.T, s *memory.Store, id string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func line(productID *string, qty int) domain.OrderLine {
	return domain.OrderLine{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(10)}
}

func TestAggregatesPerProductAndSkipsFreeLines(t *testing.T) {
	for name, wrap := range map[string]func(*memory.Store) store.Repository{
		"conditional": func(s *memory.Store) store.Repository { return newConditionalRepo(s) },
		"absolute":    func(s *memory.Store) store.Repository { return newAbsoluteRepo(s) },
	} {
		t.Run(name, func(t *testing.T) {
			s := seed(map[string]int{"a": 10, "b": 5})
			ledger := NewLedger(wrap(s), lock.NewLocal())

			result, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{
				line(ptr("a"), 2),
				line(nil, 3),
				line(ptr("b"), 1),
				line(ptr("a"), 3),
			})
			require.NoError(t, err)
			require.Len(t, result.Updates, 2)

			assert.Equal(t, domain.StockUpdate{ProductID: "a", Quantity: 5, PreviousStock: 10, NewStock: 5}, result.Updates[0])
			assert.Equal(t, domain.StockUpdate{ProductID: "b", Quantity: 1, PreviousStock: 5, NewStock: 4}, result.Updates[1])
			assert.Equal(t, 5, stockOf(t, s, "a"))
			assert.Equal(t, 4, stockOf(t, s, "b"))
		})
	}
}

func TestLowStockIsFlaggedNotRejected(t *testing.T) {
	s := seed(map[string]int{"a": 3})
	ledger := NewLedger(s, nil)

	result, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(ptr("a"), 1)})
	require.NoError(t, err)
	alerts := result.LowStockAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, 2, alerts[0].NewStock)
}

func TestOnlyFreeLinesTouchNothing(t *testing.T) {
	repo := newAbsoluteRepo(seed(map[string]int{"a": 1}))
	ledger := NewLedger(repo, nil)

	result, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(nil, 4)})
	require.NoError(t, err)
	assert.Empty(t, result.Updates)
	assert.Zero(t, repo.totalWrites())
}

func TestShortageWritesNothing(t *testing.T) {
	t.Run("absolute", func(t *testing.T) {
		s := seed(map[string]int{"a": 1, "b": 10})
		repo := newAbsoluteRepo(s)
		ledger := NewLedger(repo, nil)

		_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{
			line(ptr("a"), 2), line(ptr("b"), 1), line(nil, 1),
		})
		var shortage *domain.InsufficientStockError
		require.ErrorAs(t, err, &shortage)
		assert.Equal(t, []domain.Shortage{{ProductID: "a", Required: 2, Available: 1}}, shortage.Shortages)
		assert.Zero(t, repo.totalWrites())
		assert.Equal(t, 1, stockOf(t, s, "a"))
		assert.Equal(t, 10, stockOf(t, s, "b"))
	})

	t.Run("conditional", func(t *testing.T) {
		s := seed(map[string]int{"a": 1})
		repo := newConditionalRepo(s)
		ledger := NewLedger(repo, nil)

		_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(ptr("a"), 2)})
		assert.True(t, domain.IsInsufficientStock(err))
		assert.Zero(t, repo.decrements)
	})

	t.Run("missing product", func(t *testing.T) {
		ledger := NewLedger(seed(nil), nil)
		_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(ptr("ghost"), 1)})
		var shortage *domain.InsufficientStockError
		require.ErrorAs(t, err, &shortage)
		assert.Equal(t, 0, shortage.Shortages[0].Available)
	})
}

func TestAbsoluteWriteFailureIsCompensated(t *testing.T) {
	s := seed(map[string]int{"a": 10, "b": 10, "c": 10})
	repo := newAbsoluteRepo(s)
	repo.failAfter["b"] = 0
	ledger := NewLedger(repo, nil)

	_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{
		line(ptr("a"), 1), line(ptr("b"), 1), line(ptr("c"), 1),
	})
	var pf *domain.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.Compensated)
	assert.False(t, pf.Fatal())
	assert.Equal(t, []string{"a"}, pf.Decremented)
	assert.ErrorIs(t, err, errWrite)

	assert.Equal(t, 10, stockOf(t, s, "a"))
	assert.Equal(t, 10, stockOf(t, s, "b"))
	assert.Equal(t, 10, stockOf(t, s, "c"))
	assert.Zero(t, repo.writes["c"])
}

func TestAbsoluteCompensationFailureIsFatal(t *testing.T) {
	s := seed(map[string]int{"a": 10, "b": 10})
	repo := newAbsoluteRepo(s)
	repo.failAfter["a"] = 1
	repo.failAfter["b"] = 0
	ledger := NewLedger(repo, nil)

	_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{
		line(ptr("a"), 4), line(ptr("b"), 1),
	})
	var pf *domain.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.Fatal())
	assert.ErrorIs(t, pf.CompensationErr, errWrite)
	assert.Equal(t, 6, stockOf(t, s, "a"))
}

func TestFirstWriteFailureIsPersistence(t *testing.T) {
	repo := newAbsoluteRepo(seed(map[string]int{"a": 10}))
	repo.failAfter["a"] = 0
	ledger := NewLedger(repo, nil)

	_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(ptr("a"), 1)})
	assert.True(t, domain.IsPersistence(err))
}

func TestConditionalRaceBecomesShortageAfterCompensation(t *testing.T) {
	s := seed(map[string]int{"a": 10, "b": 3})
	repo := newConditionalRepo(s)
	repo.steal["b"] = 2
	ledger := NewLedger(repo, nil)

	_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{
		line(ptr("a"), 4), line(ptr("b"), 2),
	})
	var shortage *domain.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, domain.Shortage{ProductID: "b", Required: 2, Available: 1}, shortage.Shortages[0])
	assert.Equal(t, 10, stockOf(t, s, "a"))
	assert.Equal(t, 1, stockOf(t, s, "b"))
}

func TestConditionalCompensationFailureIsFatal(t *testing.T) {
	s := seed(map[string]int{"a": 10, "b": 10})
	repo := newConditionalRepo(s)
	repo.failDecrement["b"] = errWrite
	repo.failIncrement["a"] = errWrite
	ledger := NewLedger(repo, nil)

	_, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{
		line(ptr("a"), 1), line(ptr("b"), 1),
	})
	var pf *domain.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.Fatal())
	assert.Equal(t, []string{"a"}, pf.Decremented)
	assert.Equal(t, 9, stockOf(t, s, "a"))
}

func TestRevertRestoresBothPaths(t *testing.T) {
	for name, wrap := range map[string]func(*memory.Store) store.Repository{
		"conditional": func(s *memory.Store) store.Repository { return newConditionalRepo(s) },
		"absolute":    func(s *memory.Store) store.Repository { return newAbsoluteRepo(s) },
	} {
		t.Run(name, func(t *testing.T) {
			s := seed(map[string]int{"a": 8})
			ledger := NewLedger(wrap(s), nil)

			result, err := ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(ptr("a"), 3)})
			require.NoError(t, err)
			assert.Equal(t, 5, stockOf(t, s, "a"))

			require.NoError(t, ledger.Revert(context.Background(), result.Updates))
			assert.Equal(t, 8, stockOf(t, s, "a"))
		})
	}
}

func TestBusyGuardRejectsConcurrentRun(t *testing.T) {
	guard := lock.NewLocal()
	release, err := guard.TryAcquire(context.Background(), lock.StockKey("o1"))
	require.NoError(t, err)
	defer release()

	ledger := NewLedger(seed(map[string]int{"a": 1}), guard)
	_, err = ledger.ApplyStockDecrement(context.Background(), "o1", []domain.OrderLine{line(ptr("a"), 1)})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessing)
}
