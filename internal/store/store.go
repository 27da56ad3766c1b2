package store

import (
	"context"
	"errors"
	"time"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

type Repository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProductStock(ctx context.Context, id string, newStock int) error

	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, id string, update domain.OrderSettlementUpdate) (*domain.Order, error)
	ListOrdersByRegister(ctx context.Context, registerID string, status string) ([]domain.Order, error)
	ListSettledOrdersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error)

	CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error)
	GetRegister(ctx context.Context, id string) (*domain.CashRegister, error)
	ListOpenRegisters(ctx context.Context) ([]domain.CashRegister, error)
	UpdateRegister(ctx context.Context, id string, update domain.RegisterUpdate) (*domain.CashRegister, error)

	InsertCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListMovementsByRegister(ctx context.Context, registerID string, kind domain.MovementKind) ([]domain.CashMovement, error)

	CountSweepCandidates(ctx context.Context, cutoff time.Time) (SweepCounts, error)
	DeleteSettledOrdersOfClosedRegistersThrough(ctx context.Context, cutoff time.Time) (int, error)
	DeleteMovementsOfClosedRegistersThrough(ctx context.Context, cutoff time.Time) (int, error)
}

// ConditionalStockWriter is implemented by stores that can check and
// decrement stock in one write. DecrementStockIfAvailable returns
// ErrInsufficientStock when the row holds less than qty.
type ConditionalStockWriter interface {
	DecrementStockIfAvailable(ctx context.Context, id string, qty int) (int, error)
	IncrementStock(ctx context.Context, id string, qty int) (int, error)
}

// SweepCounts reports rows at or before a retention cutoff (inclusive).
type SweepCounts struct {
	Orders    int `json:"orders"`
	Movements int `json:"movements"`
}
