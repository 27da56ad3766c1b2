package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Stock     int             `json:"stock"`
	MinStock  int             `json:"min_stock"`
	MaxStock  int             `json:"max_stock"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderLine is one entry of a tab. ProductID is nil for weight-priced and
// box-meal entries; those never touch stock. UnitPrice is the price snapshot
// taken when the line was added.
type OrderLine struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   *string         `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID           string          `json:"id"`
	CustomerCode string          `json:"customer_code"`
	Status       string          `json:"status"`
	Lines        []OrderLine     `json:"lines"`
	Discount     AppliedDiscount `json:"discount"`
	Tender       *Tender         `json:"tender,omitempty"`
	Payable      decimal.Decimal `json:"payable"`
	RegisterID   string          `json:"register_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
}

func (o Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Total())
	}
	return total.Round(2)
}

// OrderSettlementUpdate carries the fields written when an order is paid.
type OrderSettlementUpdate struct {
	Status     string
	Payable    decimal.Decimal
	Tender     Tender
	Discount   AppliedDiscount
	RegisterID string
	PaidAt     time.Time
}

type CashRegister struct {
	ID           string          `json:"id"`
	Number       int             `json:"number"`
	OperatorName string          `json:"operator_name"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	Status       string          `json:"status"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

func (r CashRegister) IsOpen() bool {
	return r.Status == RegisterStatusOpen
}

// RegisterUpdate is applied by the store on a status transition.
type RegisterUpdate struct {
	Status   string
	OpenedAt *time.Time
	ClosedAt *time.Time
}

type MovementKind string

const (
	MovementWithdrawal         MovementKind = "withdrawal"
	MovementDeposit            MovementKind = "deposit"
	MovementReservationPayment MovementKind = "reservation_payment"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementWithdrawal, MovementDeposit, MovementReservationPayment:
		return true
	default:
		return false
	}
}

// CashMovement is immutable once inserted. Tender and PayerName are only
// set for reservation payments.
type CashMovement struct {
	ID         string          `json:"id"`
	RegisterID string          `json:"register_id"`
	Kind       MovementKind    `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	Tender     TenderType      `json:"tender,omitempty"`
	PayerName  string          `json:"payer_name,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type cashMovementJSON struct {
	ID         string          `json:"id"`
	RegisterID string          `json:"register_id"`
	Kind       MovementKind    `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	Tender     *TenderType     `json:"tender,omitempty"`
	PayerName  string          `json:"payer_name,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MarshalJSON always emits tender for reservation payments, including cash,
// and never for withdrawals or deposits.
func (m CashMovement) MarshalJSON() ([]byte, error) {
	payload := cashMovementJSON{
		ID:         m.ID,
		RegisterID: m.RegisterID,
		Kind:       m.Kind,
		Amount:     m.Amount,
		Note:       m.Note,
		PayerName:  m.PayerName,
		CreatedAt:  m.CreatedAt,
	}
	if m.Kind == MovementReservationPayment {
		tender := m.Tender
		payload.Tender = &tender
	}
	return json.Marshal(payload)
}

func (m *CashMovement) UnmarshalJSON(data []byte) error {
	var payload cashMovementJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*m = CashMovement{
		ID:         payload.ID,
		RegisterID: payload.RegisterID,
		Kind:       payload.Kind,
		Amount:     payload.Amount,
		Note:       payload.Note,
		PayerName:  payload.PayerName,
		CreatedAt:  payload.CreatedAt,
	}
	if payload.Tender != nil {
		m.Tender = *payload.Tender
	}
	return nil
}

type StockUpdate struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
	LowStock      bool   `json:"low_stock"`
}

type StockResult struct {
	Updates []StockUpdate `json:"updates"`
}

func (r StockResult) LowStockAlerts() []StockUpdate {
	alerts := make([]StockUpdate, 0)
	for _, u := range r.Updates {
		if u.LowStock {
			alerts = append(alerts, u)
		}
	}
	return alerts
}

type Settlement struct {
	OrderID    string          `json:"order_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   AppliedDiscount `json:"discount"`
	Payable    decimal.Decimal `json:"payable"`
	Tender     Tender          `json:"tender"`
	RegisterID string          `json:"register_id"`
}

type RegisterBalance struct {
	RegisterID          string          `json:"register_id"`
	OpeningFloat        decimal.Decimal `json:"opening_float"`
	SalesByTender       TenderTotals    `json:"sales_by_tender"`
	ReservationByTender TenderTotals    `json:"reservations_by_tender"`
	OrdersCount         int             `json:"orders_count"`
	CashBucket          decimal.Decimal `json:"cash_bucket"`
	TotalDeposits       decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals    decimal.Decimal `json:"total_withdrawals"`
	Balance             decimal.Decimal `json:"balance"`
}

const (
	OrderStatusOpen    = "open"
	OrderStatusSettled = "settled"
)

const (
	RegisterStatusOpen   = "open"
	RegisterStatusClosed = "closed"
)

// RegisterNumbers is the fixed set of physical tills.
var RegisterNumbers = []int{1, 2, 3}

func ValidRegisterNumber(n int) bool {
	for _, candidate := range RegisterNumbers {
		if candidate == n {
			return true
		}
	}
	return false
}

// Actor is the authenticated operator behind a request.
type Actor struct {
	Username string
	Role     string
}
