package models

import (
	"database/sql"
	"time"
)

// Product is the stock-bearing projection of a catalog record. The wider
// catalog (artwork, tracklists, mirrors) is managed elsewhere; this service
// only reads prices and mutates stock.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	WeightG   int       `db:"weight_g" json:"weight_g"`
	Stock     int       `db:"stock" json:"stock"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order is the aggregate root for a purchase. Amounts are integer minor
// units in the order's currency.
type Order struct {
	ID            string         `db:"id" json:"id"`
	Email         string         `db:"email" json:"email"`
	Country       string         `db:"country" json:"country"`
	Currency      string         `db:"currency" json:"currency"`
	Status        string         `db:"status" json:"status"`
	TotalAmount   int64          `db:"total_amount" json:"total_amount"`
	ExternalRef   sql.NullString `db:"external_ref" json:"external_ref,omitempty"`
	InvoiceNumber sql.NullString `db:"invoice_number" json:"invoice_number,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem is one line of an order. ProductID is NULL for non-product
// lines such as the shipping charge.
type OrderItem struct {
	ID        int64         `db:"id" json:"id"`
	OrderID   string        `db:"order_id" json:"order_id"`
	ProductID sql.NullInt64 `db:"product_id" json:"product_id,omitempty"`
	Label     string        `db:"label" json:"label"`
	Quantity  int           `db:"quantity" json:"quantity"`
	UnitPrice int64         `db:"unit_price" json:"unit_price"`
}

// LineTotal returns quantity * snapshotted unit price.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// IsShipping reports whether the line is the synthetic shipping charge.
func (i OrderItem) IsShipping() bool {
	return !i.ProductID.Valid
}

// Order statuses. Forward progression is pending -> paid -> processing ->
// shipped; cancelled and refunded are terminal admin overrides.
const (
	OrderStatusPending    = "PENDING"
	OrderStatusPaid       = "PAID"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

// Payment providers.
const (
	ProviderCard   = "card"
	ProviderWallet = "wallet"
)
