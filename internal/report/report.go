package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

type Daily struct {
	Date        calendar.LocalDate  `json:"date"`
	From        time.Time           `json:"from"`
	To          time.Time           `json:"to"`
	OrdersCount int                 `json:"orders_count"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	Discounts   decimal.Decimal     `json:"discounts"`
	Total       decimal.Decimal     `json:"total"`
	ByTender    domain.TenderTotals `json:"by_tender"`
	ByRegister  map[string]int      `json:"orders_by_register"`
}

type Service struct {
	repo  store.Repository
	clock calendar.Clock
}

func New(repo store.Repository, clock calendar.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// Daily totals the orders paid during one local day. A zero date means today.
func (s *Service) Daily(ctx context.Context, date calendar.LocalDate) (Daily, error) {
	if date.IsZero() {
		date = s.clock.Today()
	}
	day := calendar.DayRange(date)

	orders, err := s.repo.ListSettledOrdersBetween(ctx, day.Start, day.End)
	if err != nil {
		return Daily{}, err
	}

	report := Daily{
		Date:       date,
		From:       day.Start,
		To:         day.End,
		Subtotal:   decimal.Zero,
		Discounts:  decimal.Zero,
		Total:      decimal.Zero,
		ByRegister: make(map[string]int),
	}
	for _, order := range orders {
		if order.PaidAt == nil || calendar.ToLocalDay(*order.PaidAt) != date {
			continue
		}
		report.OrdersCount++
		report.Subtotal = report.Subtotal.Add(order.Subtotal())
		report.Discounts = report.Discounts.Add(order.Discount.Amount)
		report.Total = report.Total.Add(order.Payable)
		if order.RegisterID != "" {
			report.ByRegister[order.RegisterID]++
		}
		if order.Tender == nil {
			continue
		}
		for _, part := range order.Tender.Parts() {
			if part.Type.Valid() {
				report.ByTender.Add(part.Type, part.Amount)
			}
		}
	}
	return report, nil
}
