package models

import "time"

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderFinalized = "ORDER_FINALIZED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published when a pending order has been created and
// handed to a payment provider.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	Email       string          `json:"email"`
	TotalAmount int64           `json:"total_amount"`
	Provider    string          `json:"provider"`
	Items       []OrderItemData `json:"items"`
}

// OrderFinalizedEvent is published after the pending->paid transition has
// committed. The dispatcher worker reacts to it.
type OrderFinalizedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	Email         string `json:"email"`
	TotalAmount   int64  `json:"total_amount"`
	InvoiceNumber string `json:"invoice_number"`
	Provider      string `json:"provider"`
	ExternalRef   string `json:"external_ref"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64  `json:"product_id,omitempty"`
	Label     string `json:"label"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
