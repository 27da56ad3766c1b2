package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
	"github.com/lucasrenata/order-up-point-sub000/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	ordersByID   map[string]*domain.Order
	registers    map[string]domain.CashRegister
	movements    []domain.CashMovement
	openByNumber map[int]string
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		ordersByID:   make(map[string]*domain.Order),
		registers:    make(map[string]domain.CashRegister),
		movements:    make([]domain.CashMovement, 0, 64),
		openByNumber: make(map[int]string),
	}
}

// NewSeeded returns a store with a small demo catalog and one open tab.
func NewSeeded() *Store {
	s := New()
	products := []domain.Product{
		{ID: "prod-refri-lata", Name: "Refrigerante lata", Stock: 48, MinStock: 12, MaxStock: 96, UnitPrice: decimal.RequireFromString("6.00")},
		{ID: "prod-suco-laranja", Name: "Suco de laranja", Stock: 20, MinStock: 5, MaxStock: 40, UnitPrice: decimal.RequireFromString("9.50")},
		{ID: "prod-agua-500", Name: "Agua mineral 500ml", Stock: 60, MinStock: 15, MaxStock: 120, UnitPrice: decimal.RequireFromString("4.00")},
		{ID: "prod-cafe", Name: "Cafe expresso", Stock: 200, MinStock: 30, MaxStock: 400, UnitPrice: decimal.RequireFromString("5.00")},
		{ID: "prod-pudim", Name: "Pudim", Stock: 10, MinStock: 3, MaxStock: 20, UnitPrice: decimal.RequireFromString("12.00")},
	}
	for _, p := range products {
		s.PutProduct(p)
	}

	refri := "prod-refri-lata"
	s.PutOrder(domain.Order{
		ID:           "comanda-001",
		CustomerCode: "001",
		Status:       domain.OrderStatusOpen,
		CreatedAt:    time.Now().UTC(),
		Lines: []domain.OrderLine{
			{ID: "line-001-1", ProductID: &refri, Description: "Refrigerante lata", Quantity: 2, UnitPrice: decimal.RequireFromString("6.00")},
			{ID: "line-001-2", Description: "Self-service 0.450kg", Quantity: 1, UnitPrice: decimal.RequireFromString("31.50")},
		},
	})
	return s
}

// PutProduct inserts or replaces a catalog entry.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// PutOrder inserts or replaces a tab, assigning missing ids.
func (s *Store) PutOrder(order domain.Order) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusOpen
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
	}
	s.ordersByID[order.ID] = cloneOrder(&order)
	return *cloneOrder(&order)
}

// PutMovement inserts a movement as-is, bypassing register state checks.
func (s *Store) PutMovement(movement domain.CashMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, movement)
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProductStock(_ context.Context, id string, newStock int) error {
	if id == "" || newStock < 0 {
		return fmt.Errorf("invalid stock %d for product %q", newStock, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	product.Stock = newStock
	s.products[id] = product
	return nil
}

func (s *Store) DecrementStockIfAvailable(_ context.Context, id string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if product.Stock < qty {
		return product.Stock, store.ErrInsufficientStock
	}
	product.Stock -= qty
	s.products[id] = product
	return product.Stock, nil
}

func (s *Store) IncrementStock(_ context.Context, id string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	product.Stock += qty
	s.products[id] = product
	return product.Stock, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, update domain.OrderSettlementUpdate) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Status == domain.OrderStatusSettled && order.Status == domain.OrderStatusSettled {
		return nil, store.ErrConflict
	}

	tender := update.Tender
	tender.Splits = slices.Clone(update.Tender.Splits)
	paidAt := update.PaidAt

	order.Status = update.Status
	order.Payable = update.Payable
	order.Tender = &tender
	order.Discount = update.Discount
	order.RegisterID = update.RegisterID
	order.PaidAt = &paidAt
	return cloneOrder(order), nil
}

func (s *Store) ListOrdersByRegister(_ context.Context, registerID string, status string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if order.RegisterID != registerID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, *cloneOrder(order))
	}
	sortOrdersByPaidAt(result)
	return result, nil
}

func (s *Store) ListSettledOrdersBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if order.Status != domain.OrderStatusSettled || order.PaidAt == nil {
			continue
		}
		if order.PaidAt.Before(from) || order.PaidAt.After(to) {
			continue
		}
		result = append(result, *cloneOrder(order))
	}
	sortOrdersByPaidAt(result)
	return result, nil
}

func (s *Store) CreateRegister(_ context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	if strings.TrimSpace(register.OperatorName) == "" {
		return nil, fmt.Errorf("operator name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.openByNumber[register.Number]; exists && register.Status == domain.RegisterStatusOpen {
		return nil, store.ErrConflict
	}
	if register.ID == "" {
		register.ID = xid.New("caixa")
	}
	if register.OpenedAt.IsZero() {
		register.OpenedAt = time.Now().UTC()
	}
	s.registers[register.ID] = register
	if register.Status == domain.RegisterStatusOpen {
		s.openByNumber[register.Number] = register.ID
	}
	saved := register
	return &saved, nil
}

func (s *Store) GetRegister(_ context.Context, id string) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	register, ok := s.registers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyRegister := register
	return &copyRegister, nil
}

func (s *Store) ListOpenRegisters(_ context.Context) ([]domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashRegister, 0, len(s.openByNumber))
	for _, id := range s.openByNumber {
		result = append(result, s.registers[id])
	}
	slices.SortFunc(result, func(a, b domain.CashRegister) int {
		return a.Number - b.Number
	})
	return result, nil
}

func (s *Store) UpdateRegister(_ context.Context, id string, update domain.RegisterUpdate) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	register, ok := s.registers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Status == domain.RegisterStatusClosed && register.Status == domain.RegisterStatusClosed {
		return nil, store.ErrConflict
	}

	register.Status = update.Status
	if update.OpenedAt != nil {
		register.OpenedAt = *update.OpenedAt
	}
	if update.ClosedAt != nil {
		closedAt := *update.ClosedAt
		register.ClosedAt = &closedAt
	}
	s.registers[id] = register
	if register.Status == domain.RegisterStatusClosed && s.openByNumber[register.Number] == id {
		delete(s.openByNumber, register.Number)
	}
	copyRegister := register
	return &copyRegister, nil
}

func (s *Store) InsertCashMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if !movement.Kind.Valid() {
		return nil, fmt.Errorf("invalid movement kind %q", movement.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	register, ok := s.registers[movement.RegisterID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if register.Status != domain.RegisterStatusOpen {
		return nil, store.ErrConflict
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, movement)
	saved := movement
	return &saved, nil
}

func (s *Store) ListMovementsByRegister(_ context.Context, registerID string, kind domain.MovementKind) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashMovement, 0, 16)
	for _, m := range s.movements {
		if m.RegisterID != registerID {
			continue
		}
		if kind != "" && m.Kind != kind {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) CountSweepCandidates(_ context.Context, cutoff time.Time) (store.SweepCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts store.SweepCounts
	for _, order := range s.ordersByID {
		if s.isSweepableOrder(order, cutoff) {
			counts.Orders++
		}
	}
	for _, m := range s.movements {
		if s.isSweepableMovement(m, cutoff) {
			counts.Movements++
		}
	}
	return counts, nil
}

func (s *Store) DeleteSettledOrdersOfClosedRegistersThrough(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, order := range s.ordersByID {
		if s.isSweepableOrder(order, cutoff) {
			delete(s.ordersByID, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteMovementsOfClosedRegistersThrough(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.movements[:0]
	deleted := 0
	for _, m := range s.movements {
		if s.isSweepableMovement(m, cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.movements = kept
	return deleted, nil
}

// Orders and movements of a register that is still open are kept so its
// balance does not change under the operator.
func (s *Store) isSweepableOrder(order *domain.Order, cutoff time.Time) bool {
	if order.Status != domain.OrderStatusSettled || order.PaidAt == nil || order.PaidAt.After(cutoff) {
		return false
	}
	return !s.registerOpen(order.RegisterID)
}

func (s *Store) isSweepableMovement(m domain.CashMovement, cutoff time.Time) bool {
	if m.CreatedAt.After(cutoff) {
		return false
	}
	return !s.registerOpen(m.RegisterID)
}

func (s *Store) registerOpen(id string) bool {
	register, ok := s.registers[id]
	return ok && register.IsOpen()
}

func sortOrdersByPaidAt(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		at, bt := orderTime(a), orderTime(b)
		if at.Equal(bt) {
			return strings.Compare(a.ID, b.ID)
		}
		if at.Before(bt) {
			return -1
		}
		return 1
	})
}

func orderTime(o domain.Order) time.Time {
	if o.PaidAt != nil {
		return *o.PaidAt
	}
	return o.CreatedAt
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Lines = make([]domain.OrderLine, len(src.Lines))
	for i, line := range src.Lines {
		if line.ProductID != nil {
			id := *line.ProductID
			line.ProductID = &id
		}
		dup.Lines[i] = line
	}
	if src.Tender != nil {
		tender := *src.Tender
		tender.Splits = slices.Clone(src.Tender.Splits)
		dup.Tender = &tender
	}
	if src.PaidAt != nil {
		paidAt := *src.PaidAt
		dup.PaidAt = &paidAt
	}
	return &dup
}
