// Package retention removes settled orders and cash movements older than a
// number of local days. Today is never swept.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasrenata/order-up-point-sub000/internal/audit"
	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/lock"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

const DefaultDays = 7

const lockKey = "retention:sweep"

type Sweeper struct {
	repo  store.Repository
	clock calendar.Clock
	guard lock.Locker
	days  int
}

func NewSweeper(repo store.Repository, clock calendar.Clock, guard lock.Locker, days int) *Sweeper {
	if days < 1 {
		days = DefaultDays
	}
	if guard == nil {
		guard = lock.NewLocal()
	}
	return &Sweeper{repo: repo, clock: clock, guard: guard, days: days}
}

// Plan describes one sweep. Cutoff is the last instant swept, inclusive.
type Plan struct {
	Days       int                `json:"days"`
	CutoffDate calendar.LocalDate `json:"cutoff_date"`
	Cutoff     time.Time          `json:"cutoff"`
	Candidates store.SweepCounts  `json:"candidates"`
}

type Result struct {
	Plan             Plan `json:"plan"`
	DeletedOrders    int  `json:"deleted_orders"`
	DeletedMovements int  `json:"deleted_movements"`
}

// Cutoff returns the local date D = today - days and the end of D as an instant.
func Cutoff(today calendar.LocalDate, days int) (calendar.LocalDate, time.Time) {
	date := today.AddDays(-days)
	return date, calendar.DayRange(date).End
}

func (s *Sweeper) plan() Plan {
	date, cutoff := Cutoff(s.clock.Today(), s.days)
	return Plan{Days: s.days, CutoffDate: date, Cutoff: cutoff}
}

// Preview counts what Run would delete without deleting anything.
func (s *Sweeper) Preview(ctx context.Context) (Plan, error) {
	plan := s.plan()
	counts, err := s.repo.CountSweepCandidates(ctx, plan.Cutoff)
	if err != nil {
		return Plan{}, err
	}
	plan.Candidates = counts
	return plan, nil
}

// Run deletes settled orders paid through the cutoff and movements of closed
// registers created through the cutoff. Open tabs and open registers are kept.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	release, err := s.guard.TryAcquire(ctx, lockKey)
	if err != nil {
		return Result{}, err
	}
	defer release()

	plan, err := s.Preview(ctx)
	if err != nil {
		return Result{}, err
	}
	result := Result{Plan: plan}

	result.DeletedOrders, err = s.repo.DeleteSettledOrdersOfClosedRegistersThrough(ctx, plan.Cutoff)
	if err != nil {
		return result, fmt.Errorf("delete settled orders: %w", err)
	}
	result.DeletedMovements, err = s.repo.DeleteMovementsOfClosedRegistersThrough(ctx, plan.Cutoff)
	if err != nil {
		return result, fmt.Errorf("delete movements (orders already deleted: %d): %w", result.DeletedOrders, err)
	}

	audit.Log(ctx, "retention_sweep", "retention", plan.CutoffDate.String(), func(e *zerolog.Event) {
		e.Int("days", plan.Days).
			Time("cutoff", plan.Cutoff).
			Int("orders", result.DeletedOrders).
			Int("movements", result.DeletedMovements)
	})
	return result, nil
}
