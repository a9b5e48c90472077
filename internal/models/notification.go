package models

// NotificationEnvelope is the provider-neutral form of an asynchronous
// payment notification. Every provider adapter must normalize its payload
// into this shape before the reconciliation engine sees it; the engine never
// touches provider-specific structures.
type NotificationEnvelope struct {
	// OrderID is the correlation value this service embedded in provider
	// metadata at session-creation time. Never a client-supplied id.
	OrderID string

	// ExternalID identifies the provider-side event or capture. Together
	// with OrderID it forms the idempotence key.
	ExternalID string

	// Provider is ProviderCard or ProviderWallet.
	Provider string

	// ReportedTotal is the provider's view of the order total, used only as
	// a consistency check against the recomputed total.
	ReportedTotal int64

	// ReportedShipping carries the provider-side shipping amount when the
	// event class includes one. Nil means "not reported".
	ReportedShipping *int64

	// AuthoritativeForShipping marks event classes trusted as the single
	// source of truth for the shipping amount. Lower-tier events must leave
	// the shipping line untouched even when they report an amount.
	AuthoritativeForShipping bool
}
