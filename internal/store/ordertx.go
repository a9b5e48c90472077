package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrOrderNotFound is returned by BeginOrderTx for unknown order ids.
var ErrOrderNotFound = fmt.Errorf("order not found")

// OrderTx is a transaction scoped to one order, opened with the order row
// locked. Every finalize side effect runs through it so nothing becomes
// visible to a concurrent caller before Commit. The interface exists so the
// reconciliation engine can be exercised against an in-memory fake.
type OrderTx interface {
	// Order returns the row as read under the lock.
	Order() *models.Order
	Items(ctx context.Context) ([]models.OrderItem, error)
	// MarkPaid transitions the order to PAID and records the external
	// payment reference on first acceptance.
	MarkPaid(ctx context.Context, externalRef string) error
	// DecrementStock lowers a product's stock by qty, floored at zero, and
	// deactivates the product when stock reaches zero. Returns false when
	// the product row no longer exists.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
	// ReplaceShippingLine deletes all productless lines and inserts at most
	// one new one when amount > 0.
	ReplaceShippingLine(ctx context.Context, amount int64, label string) error
	// RecomputeTotal writes the sum of current line totals back to the
	// order and returns it.
	RecomputeTotal(ctx context.Context) (int64, error)
	// AssignInvoiceNumber reserves the next counter value and stamps it on
	// the order.
	AssignInvoiceNumber(ctx context.Context) (string, error)
	Commit() error
	Rollback() error
}

// BeginOrderTx opens a transaction and locks the order row FOR UPDATE. The
// caller must Commit or Rollback.
func (s *Store) BeginOrderTx(ctx context.Context, orderID string) (OrderTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		_ = tx.Rollback()
		return nil, ErrOrderNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	return &sqlOrderTx{tx: tx, order: order, invoicePrefix: s.invoicePrefix}, nil
}

type sqlOrderTx struct {
	tx            *sqlx.Tx
	order         models.Order
	invoicePrefix string
}

func (t *sqlOrderTx) Order() *models.Order {
	return &t.order
}

func (t *sqlOrderTx) Items(ctx context.Context) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := t.tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", t.order.ID)
	return items, err
}

func (t *sqlOrderTx) MarkPaid(ctx context.Context, externalRef string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = $1,
			external_ref = COALESCE(external_ref, $2),
			updated_at = NOW()
		WHERE id = $3`,
		models.OrderStatusPaid, externalRef, t.order.ID)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	t.order.Status = models.OrderStatusPaid
	if !t.order.ExternalRef.Valid {
		t.order.ExternalRef = sql.NullString{String: externalRef, Valid: true}
	}
	return nil
}

func (t *sqlOrderTx) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET
			stock = GREATEST(stock - $1, 0),
			active = CASE WHEN GREATEST(stock - $1, 0) = 0 THEN FALSE ELSE active END
		WHERE id = $2`,
		qty, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *sqlOrderTx) ReplaceShippingLine(ctx context.Context, amount int64, label string) error {
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM order_items WHERE order_id = $1 AND product_id IS NULL", t.order.ID)
	if err != nil {
		return fmt.Errorf("failed to delete shipping lines: %w", err)
	}
	if amount <= 0 {
		return nil
	}

	item := models.OrderItem{
		OrderID:   t.order.ID,
		Label:     label,
		Quantity:  1,
		UnitPrice: amount,
	}
	return insertItem(ctx, t.tx, &item)
}

func (t *sqlOrderTx) RecomputeTotal(ctx context.Context) (int64, error) {
	var total int64
	err := t.tx.GetContext(ctx, &total, `
		UPDATE orders SET total_amount = (
			SELECT COALESCE(SUM(quantity * unit_price), 0)
			FROM order_items WHERE order_id = $1
		), updated_at = NOW()
		WHERE id = $1
		RETURNING total_amount`,
		t.order.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute total: %w", err)
	}
	t.order.TotalAmount = total
	return total, nil
}

func (t *sqlOrderTx) AssignInvoiceNumber(ctx context.Context) (string, error) {
	if t.order.InvoiceNumber.Valid {
		return t.order.InvoiceNumber.String, nil
	}

	var value int64
	err := t.tx.GetContext(ctx, &value,
		"UPDATE invoice_counter SET value = value + 1 WHERE id = 1 RETURNING value")
	if err != nil {
		return "", fmt.Errorf("failed to advance invoice counter: %w", err)
	}

	number := fmt.Sprintf("%s%06d", t.invoicePrefix, value)
	_, err = t.tx.ExecContext(ctx,
		"UPDATE orders SET invoice_number = $1, updated_at = NOW() WHERE id = $2",
		number, t.order.ID)
	if err != nil {
		return "", fmt.Errorf("failed to assign invoice number: %w", err)
	}
	t.order.InvoiceNumber = sql.NullString{String: number, Valid: true}
	return number, nil
}

func (t *sqlOrderTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlOrderTx) Rollback() error {
	return t.tx.Rollback()
}
