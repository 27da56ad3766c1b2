package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
	"github.com/lucasrenata/order-up-point-sub000/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the bundled schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, stock, min_stock, max_stock, unit_price
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Stock, &p.MinStock, &p.MaxStock, &p.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock, min_stock, max_stock, unit_price
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Stock, &p.MinStock, &p.MaxStock, &p.UnitPrice); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateProductStock(ctx context.Context, id string, newStock int) error {
	if id == "" || newStock < 0 {
		return fmt.Errorf("invalid stock %d for product %q", newStock, id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
	`, id, newStock)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DecrementStockIfAvailable(ctx context.Context, id string, qty int) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`, id, qty).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// No row updated: either the product is gone or it holds too little.
	var current int
	err = s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return current, store.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, id string, qty int) (int, error) {
	var stock int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
		RETURNING stock
	`, id, qty).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return stock, nil
}

const orderColumns = `
	id, customer_code, status, discount_amount, discount_percent, discount_reason,
	tender, payable, register_id, created_at, paid_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o          domain.Order
		percent    decimal.NullDecimal
		tenderRaw  []byte
		registerID sql.NullString
		paidAt     sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.CustomerCode, &o.Status, &o.Discount.Amount, &percent, &o.Discount.Reason,
		&tenderRaw, &o.Payable, &registerID, &o.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if percent.Valid {
		p := percent.Decimal
		o.Discount.Percent = &p
	}
	if len(tenderRaw) > 0 {
		var tender domain.Tender
		if err := json.Unmarshal(tenderRaw, &tender); err != nil {
			return nil, fmt.Errorf("decode tender of order %s: %w", o.ID, err)
		}
		o.Tender = &tender
	}
	if registerID.Valid {
		o.RegisterID = registerID.String
	}
	o.CreatedAt = o.CreatedAt.UTC()
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		o.PaidAt = &t
	}
	return &o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	orders := []domain.Order{*order}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, update domain.OrderSettlementUpdate) (*domain.Order, error) {
	tenderRaw, err := json.Marshal(update.Tender)
	if err != nil {
		return nil, fmt.Errorf("encode tender: %w", err)
	}

	var percent decimal.NullDecimal
	if update.Discount.Percent != nil {
		percent = decimal.NewNullDecimal(*update.Discount.Percent)
	}

	// The status guard keeps a second settle of the same tab from overwriting the first.
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payable = $3, tender = $4, discount_amount = $5,
			discount_percent = $6, discount_reason = $7, register_id = $8, paid_at = $9
		WHERE id = $1 AND NOT (status = 'settled' AND $2 = 'settled')
	`, id, update.Status, update.Payable, string(tenderRaw), update.Discount.Amount,
		percent, update.Discount.Reason, nullIfEmpty(update.RegisterID), update.PaidAt.UTC())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrConflict
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrdersByRegister(ctx context.Context, registerID string, status string) ([]domain.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE register_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY COALESCE(paid_at, created_at), id
	`, registerID, status)
}

func (s *Store) ListSettledOrdersBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'settled' AND paid_at >= $1 AND paid_at <= $2
		ORDER BY paid_at, id
	`, from.UTC(), to.UTC())
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachLines(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Lines = make([]domain.OrderLine, 0, 4)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, description, quantity, unit_price
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line      domain.OrderLine
			productID sql.NullString
		)
		if err := rows.Scan(&line.ID, &line.OrderID, &productID, &line.Description, &line.Quantity, &line.UnitPrice); err != nil {
			return err
		}
		if productID.Valid {
			id := productID.String
			line.ProductID = &id
		}
		i := index[line.OrderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	return rows.Err()
}

// CreateOrder inserts a tab and its lines. Tabs are opened by the front of
// house; settlement only reads and updates them.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if strings.TrimSpace(order.CustomerCode) == "" {
		return nil, fmt.Errorf("customer code required")
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusOpen
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_code, status, created_at)
		VALUES ($1,$2,$3,$4)
	`, order.ID, order.CustomerCode, order.Status, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		line.OrderID = order.ID
		var productID any
		if line.ProductID != nil {
			productID = *line.ProductID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, description, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ID, order.ID, productID, line.Description, line.Quantity, line.UnitPrice)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

const registerColumns = `id, number, operator_name, opening_float, status, opened_at, closed_at`

func scanRegister(row rowScanner) (*domain.CashRegister, error) {
	var (
		r        domain.CashRegister
		closedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Number, &r.OperatorName, &r.OpeningFloat, &r.Status, &r.OpenedAt, &closedAt); err != nil {
		return nil, err
	}
	r.OpenedAt = r.OpenedAt.UTC()
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		r.ClosedAt = &t
	}
	return &r, nil
}

func (s *Store) CreateRegister(ctx context.Context, register domain.CashRegister) (*domain.CashRegister, error) {
	if strings.TrimSpace(register.OperatorName) == "" {
		return nil, fmt.Errorf("operator name required")
	}
	if register.ID == "" {
		register.ID = xid.New("caixa")
	}
	if register.OpenedAt.IsZero() {
		register.OpenedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (id, number, operator_name, opening_float, status, opened_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, register.ID, register.Number, register.OperatorName, register.OpeningFloat, register.Status,
		register.OpenedAt.UTC(), nullTime(register.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := register
	return &created, nil
}

func (s *Store) GetRegister(ctx context.Context, id string) (*domain.CashRegister, error) {
	register, err := scanRegister(s.db.QueryRowContext(ctx, `SELECT `+registerColumns+` FROM cash_registers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return register, nil
}

func (s *Store) ListOpenRegisters(ctx context.Context) ([]domain.CashRegister, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registerColumns+`
		FROM cash_registers
		WHERE status = 'open'
		ORDER BY number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registers := make([]domain.CashRegister, 0, len(domain.RegisterNumbers))
	for rows.Next() {
		register, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		registers = append(registers, *register)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return registers, nil
}

func (s *Store) UpdateRegister(ctx context.Context, id string, update domain.RegisterUpdate) (*domain.CashRegister, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_registers
		SET status = $2,
			opened_at = COALESCE($3, opened_at),
			closed_at = COALESCE($4, closed_at)
		WHERE id = $1 AND NOT (status = 'closed' AND $2 = 'closed')
	`, id, update.Status, nullTime(update.OpenedAt), nullTime(update.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetRegister(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrConflict
	}
	return s.GetRegister(ctx, id)
}

func (s *Store) InsertCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if !movement.Kind.Valid() {
		return nil, fmt.Errorf("invalid movement kind %q", movement.Kind)
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	var tender any
	if movement.Kind == domain.MovementReservationPayment {
		tender = movement.Tender.String()
	}

	// Only an open register accepts movements.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_movements (id, register_id, kind, amount, note, tender, payer_name, created_at)
		SELECT $1::text, $2::text, $3::text, $4::numeric, $5::text, $6::text, $7::text, $8::timestamptz
		WHERE EXISTS (SELECT 1 FROM cash_registers WHERE id = $2::text AND status = 'open')
	`, movement.ID, movement.RegisterID, string(movement.Kind), movement.Amount, movement.Note,
		tender, movement.PayerName, movement.CreatedAt.UTC())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetRegister(ctx, movement.RegisterID); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrConflict
	}
	saved := movement
	return &saved, nil
}

func (s *Store) ListMovementsByRegister(ctx context.Context, registerID string, kind domain.MovementKind) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, register_id, kind, amount, note, tender, payer_name, created_at
		FROM cash_movements
		WHERE register_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at, id
	`, registerID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 16)
	for rows.Next() {
		var (
			m      domain.CashMovement
			k      string
			tender sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.RegisterID, &k, &m.Amount, &m.Note, &tender, &m.PayerName, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = domain.MovementKind(k)
		m.CreatedAt = m.CreatedAt.UTC()
		if tender.Valid {
			parsed, err := domain.ParseTenderType(tender.String)
			if err != nil {
				return nil, fmt.Errorf("movement %s: %w", m.ID, err)
			}
			m.Tender = parsed
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CountSweepCandidates(ctx context.Context, cutoff time.Time) (store.SweepCounts, error) {
	var counts store.SweepCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM orders o
				WHERE o.status = 'settled' AND o.paid_at <= $1
				AND NOT EXISTS (SELECT 1 FROM cash_registers r WHERE r.id = o.register_id AND r.status = 'open')),
			(SELECT count(*) FROM cash_movements m
				JOIN cash_registers r ON r.id = m.register_id
				WHERE r.status = 'closed' AND m.created_at <= $1)
	`, cutoff.UTC()).Scan(&counts.Orders, &counts.Movements)
	if err != nil {
		return store.SweepCounts{}, err
	}
	return counts, nil
}

func (s *Store) DeleteSettledOrdersOfClosedRegistersThrough(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM orders o
		WHERE o.status = 'settled' AND o.paid_at <= $1
		AND NOT EXISTS (SELECT 1 FROM cash_registers r WHERE r.id = o.register_id AND r.status = 'open')
	`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) DeleteMovementsOfClosedRegistersThrough(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cash_movements m
		USING cash_registers r
		WHERE r.id = m.register_id AND r.status = 'closed' AND m.created_at <= $1
	`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
