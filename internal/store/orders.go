package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"

	"github.com/google/uuid"
)

// OrderLine is one requested product line for order creation.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// ShippingLine is the optional synthetic charge materialized at checkout.
type ShippingLine struct {
	Amount int64
	Label  string
}

// ErrNoPurchasableLines is returned when every requested line clamps to zero.
var ErrNoPurchasableLines = fmt.Errorf("no purchasable lines remain")

// CreateOrder inserts a pending order with its items in one transaction.
// Requested quantities are clamped to the currently available stock; lines
// for inactive or exhausted products are dropped silently. Unit prices are
// snapshotted from the live catalog and never re-read afterwards. The error
// case is an order with zero purchasable lines.
func (s *Store) CreateOrder(ctx context.Context, email, country, currency string, lines []OrderLine, shipping *ShippingLine) (*models.Order, []models.OrderItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	order := &models.Order{
		ID:       uuid.New().String(),
		Email:    email,
		Country:  country,
		Currency: currency,
		Status:   models.OrderStatusPending,
	}

	products := make(map[int64]models.Product, len(lines))
	for _, line := range lines {
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		var p models.Product
		err := tx.GetContext(ctx, &p,
			"SELECT * FROM products WHERE id = $1", line.ProductID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load product %d: %w", line.ProductID, err)
		}
		products[p.ID] = p
	}

	items, total := ClampLines(order.ID, products, lines)
	if len(items) == 0 {
		return nil, nil, ErrNoPurchasableLines
	}

	if shipping != nil && shipping.Amount > 0 {
		items = append(items, models.OrderItem{
			OrderID:   order.ID,
			Label:     shipping.Label,
			Quantity:  1,
			UnitPrice: shipping.Amount,
		})
		total += shipping.Amount
	}
	order.TotalAmount = total

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (id, email, country, currency, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		order.ID, order.Email, order.Country, order.Currency, order.Status, order.TotalAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ClampLines builds order items from requested lines against the current
// catalog state. Quantities are clamped to available stock; lines for
// unknown, inactive or exhausted products are dropped silently. Unit prices
// are snapshotted from the passed products. Returns the items and their sum.
func ClampLines(orderID string, products map[int64]models.Product, lines []OrderLine) ([]models.OrderItem, int64) {
	items := make([]models.OrderItem, 0, len(lines))
	var total int64
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok || !p.Active || p.Stock <= 0 {
			continue
		}

		qty := line.Quantity
		if qty > p.Stock {
			qty = p.Stock
		}
		if qty <= 0 {
			continue
		}

		items = append(items, models.OrderItem{
			OrderID:   orderID,
			ProductID: sql.NullInt64{Int64: p.ID, Valid: true},
			Label:     p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
		})
		total += int64(qty) * p.Price
	}
	return items, total
}

type execer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func insertItem(ctx context.Context, tx execer, item *models.OrderItem) error {
	err := tx.GetContext(ctx, &item.ID, `
		INSERT INTO order_items (order_id, product_id, label, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		item.OrderID, item.ProductID, item.Label, item.Quantity, item.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrdersByEmail retrieves orders for a buyer
func (s *Store) GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE email = $1 ORDER BY created_at DESC", email)
	return orders, err
}

// UpdateOrderStatus updates order status outside the finalize path (admin
// progression to PROCESSING/SHIPPED, cancellation).
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}
