package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

var (
	_ store.Repository             = (*Store)(nil)
	_ store.ConditionalStockWriter = (*Store)(nil)
)

func TestDecrementStockIfAvailable(t *testing.T) {
	s := New()
	s.PutProduct(domain.Product{ID: "p1", Name: "Suco", Stock: 3})
	ctx := context.Background()

	remaining, err := s.DecrementStockIfAvailable(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	current, err := s.DecrementStockIfAvailable(ctx, "p1", 2)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 1, current)

	_, err = s.DecrementStockIfAvailable(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	restored, err := s.IncrementStock(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, restored)
}

func TestGetOrderReturnsCopy(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	order, err := s.GetOrder(ctx, "comanda-001")
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	*order.Lines[0].ProductID = "tampered"
	order.Lines[1].Quantity = 99

	again, err := s.GetOrder(ctx, "comanda-001")
	require.NoError(t, err)
	assert.Equal(t, "prod-refri-lata", *again.Lines[0].ProductID)
	assert.Equal(t, 1, again.Lines[1].Quantity)
}

func TestUpdateOrderRejectsSecondSettle(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	update := domain.OrderSettlementUpdate{
		Status:  domain.OrderStatusSettled,
		Payable: decimal.RequireFromString("43.50"),
		Tender:  domain.SingleTender(domain.TenderPix, decimal.RequireFromString("43.50")),
		PaidAt:  time.Now().UTC(),
	}

	settled, err := s.UpdateOrder(ctx, "comanda-001", update)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSettled, settled.Status)
	require.NotNil(t, settled.PaidAt)

	_, err = s.UpdateOrder(ctx, "comanda-001", update)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.UpdateOrder(ctx, "missing", update)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOneOpenRegisterPerNumber(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateRegister(ctx, domain.CashRegister{Number: 1, OperatorName: "Ana", Status: domain.RegisterStatusOpen})
	require.NoError(t, err)
	_, err = s.CreateRegister(ctx, domain.CashRegister{Number: 1, OperatorName: "Bia", Status: domain.RegisterStatusOpen})
	assert.ErrorIs(t, err, store.ErrConflict)

	closedAt := time.Now().UTC()
	_, err = s.UpdateRegister(ctx, first.ID, domain.RegisterUpdate{Status: domain.RegisterStatusClosed, ClosedAt: &closedAt})
	require.NoError(t, err)
	_, err = s.UpdateRegister(ctx, first.ID, domain.RegisterUpdate{Status: domain.RegisterStatusClosed, ClosedAt: &closedAt})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateRegister(ctx, domain.CashRegister{Number: 1, OperatorName: "Bia", Status: domain.RegisterStatusOpen})
	require.NoError(t, err)

	open, err := s.ListOpenRegisters(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Bia", open[0].OperatorName)

	_, err = s.InsertCashMovement(ctx, domain.CashMovement{RegisterID: first.ID, Kind: domain.MovementDeposit, Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSweepIsInclusiveAndSparesOpenRegisters(t *testing.T) {
	s := New()
	ctx := context.Background()
	cutoff := time.Date(2024, 3, 9, 2, 59, 59, 999_000_000, time.UTC)

	atCutoff := cutoff
	after := cutoff.Add(time.Millisecond)
	s.PutOrder(domain.Order{ID: "o-at", Status: domain.OrderStatusSettled, PaidAt: &atCutoff})
	s.PutOrder(domain.Order{ID: "o-after", Status: domain.OrderStatusSettled, PaidAt: &after})
	s.PutOrder(domain.Order{ID: "o-open", Status: domain.OrderStatusOpen, CreatedAt: cutoff.Add(-time.Hour)})

	closed, err := s.CreateRegister(ctx, domain.CashRegister{Number: 1, OperatorName: "Ana", Status: domain.RegisterStatusClosed})
	require.NoError(t, err)
	open, err := s.CreateRegister(ctx, domain.CashRegister{Number: 2, OperatorName: "Bia", Status: domain.RegisterStatusOpen})
	require.NoError(t, err)
	s.PutMovement(domain.CashMovement{ID: "m1", RegisterID: closed.ID, Kind: domain.MovementWithdrawal, Amount: decimal.NewFromInt(1), CreatedAt: cutoff})
	s.PutMovement(domain.CashMovement{ID: "m2", RegisterID: closed.ID, Kind: domain.MovementWithdrawal, Amount: decimal.NewFromInt(1), CreatedAt: after})
	s.PutMovement(domain.CashMovement{ID: "m3", RegisterID: open.ID, Kind: domain.MovementDeposit, Amount: decimal.NewFromInt(1), CreatedAt: cutoff})

	counts, err := s.CountSweepCandidates(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, store.SweepCounts{Orders: 1, Movements: 1}, counts)

	orders, err := s.DeleteSettledOrdersOfClosedRegistersThrough(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, orders)
	movements, err := s.DeleteMovementsOfClosedRegistersThrough(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, movements)

	_, err = s.GetOrder(ctx, "o-at")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetOrder(ctx, "o-after")
	assert.NoError(t, err)
	_, err = s.GetOrder(ctx, "o-open")
	assert.NoError(t, err)

	left, err := s.ListMovementsByRegister(ctx, closed.ID, "")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "m2", left[0].ID)
}

func TestSweepKeepsOrdersOfOpenRegisters(t *testing.T) {
	s := New()
	ctx := context.Background()
	cutoff := time.Date(2024, 3, 9, 2, 59, 59, 999_000_000, time.UTC)
	paid := cutoff.Add(-48 * time.Hour)

	open, err := s.CreateRegister(ctx, domain.CashRegister{Number: 1, OperatorName: "Ana", Status: domain.RegisterStatusOpen})
	require.NoError(t, err)
	closed, err := s.CreateRegister(ctx, domain.CashRegister{Number: 2, OperatorName: "Bia", Status: domain.RegisterStatusClosed})
	require.NoError(t, err)
	s.PutOrder(domain.Order{ID: "o-open-reg", Status: domain.OrderStatusSettled, RegisterID: open.ID, PaidAt: &paid})
	s.PutOrder(domain.Order{ID: "o-closed-reg", Status: domain.OrderStatusSettled, RegisterID: closed.ID, PaidAt: &paid})

	counts, err := s.CountSweepCandidates(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Orders)

	deleted, err := s.DeleteSettledOrdersOfClosedRegistersThrough(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = s.GetOrder(ctx, "o-open-reg")
	assert.NoError(t, err)
	_, err = s.GetOrder(ctx, "o-closed-reg")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSettledOrdersBetweenIsInclusive(t *testing.T) {
	s := New()
	ctx := context.Background()
	from := time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Millisecond)

	for id, paid := range map[string]time.Time{
		"before": from.Add(-time.Millisecond),
		"start":  from,
		"end":    to,
		"after":  to.Add(time.Millisecond),
	} {
		paidAt := paid
		s.PutOrder(domain.Order{ID: id, Status: domain.OrderStatusSettled, PaidAt: &paidAt})
	}

	orders, err := s.ListSettledOrdersBetween(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "start", orders[0].ID)
	assert.Equal(t, "end", orders[1].ID)
}
