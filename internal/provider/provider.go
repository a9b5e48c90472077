// Package provider holds the provider-neutral types shared by the payment
// provider adapters. The checkout and reconciliation services only ever see
// these shapes plus models.NotificationEnvelope.
package provider

import "context"

// SessionItem is one display line for a hosted payment page.
type SessionItem struct {
	Label     string `json:"label"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// SessionRequest asks a provider to create a hosted payment session. OrderID
// travels as opaque metadata and comes back on notifications as the
// correlation value.
type SessionRequest struct {
	OrderID    string
	Currency   string
	SuccessURL string
	CancelURL  string
	Items      []SessionItem
}

// Session is the provider's handle for a created payment session.
type Session struct {
	ID          string
	RedirectURL string
}

// SessionCreator is implemented by both provider clients.
type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}
