package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func paid(s *memory.Store, id string, at time.Time, tender domain.Tender) {
	s.PutOrder(domain.Order{
		ID:         id,
		Status:     domain.OrderStatusSettled,
		Payable:    tender.Amount,
		Tender:     &tender,
		RegisterID: "caixa-1",
		PaidAt:     &at,
		Lines:      []domain.OrderLine{{Quantity: 1, UnitPrice: tender.Amount}},
	})
}

func TestDailyBucketsByLocalDay(t *testing.T) {
	s := memory.New()
	// 2024-03-16 02:30 UTC is still 2024-03-15 locally.
	paid(s, "late-night", time.Date(2024, 3, 16, 2, 30, 0, 0, time.UTC), domain.SingleTender(domain.TenderCash, dec("30.00")))
	paid(s, "first", time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC), domain.SplitTender([]domain.PaymentSplit{
		{Type: domain.TenderCash, Amount: dec("10.00")},
		{Type: domain.TenderPix, Amount: dec("12.50")},
	}))
	paid(s, "previous-day", time.Date(2024, 3, 15, 2, 59, 59, 0, time.UTC), domain.SingleTender(domain.TenderPix, dec("99.00")))
	paid(s, "next-day", time.Date(2024, 3, 16, 3, 0, 0, 0, time.UTC), domain.SingleTender(domain.TenderPix, dec("99.00")))

	now := time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)
	svc := New(s, calendar.NewClock(func() time.Time { return now }))

	report, err := svc.Daily(context.Background(), calendar.LocalDate{})
	require.NoError(t, err)
	assert.Equal(t, calendar.NewLocalDate(2024, 3, 15), report.Date)
	assert.Equal(t, 2, report.OrdersCount)
	assert.True(t, report.Total.Equal(dec("52.50")))
	assert.True(t, report.ByTender.Get(domain.TenderCash).Equal(dec("40.00")))
	assert.True(t, report.ByTender.Get(domain.TenderPix).Equal(dec("12.50")))
	assert.Equal(t, 2, report.ByRegister["caixa-1"])
	assert.Equal(t, time.Date(2024, 3, 15, 3, 0, 0, 0, time.UTC), report.From)
}

func TestDailyEmptyDay(t *testing.T) {
	svc := New(memory.New(), calendar.System())
	report, err := svc.Daily(context.Background(), calendar.NewLocalDate(2020, 1, 1))
	require.NoError(t, err)
	assert.Zero(t, report.OrdersCount)
	assert.True(t, report.Total.IsZero())
}
