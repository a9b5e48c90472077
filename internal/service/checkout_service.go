package service

import (
	"context"
	"errors"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/shipping"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/store"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutStore is the slice of the order store the checkout broker needs.
type CheckoutStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateOrder(ctx context.Context, email, country, currency string, lines []store.OrderLine, shippingLine *store.ShippingLine) (*models.Order, []models.OrderItem, error)
}

// CreatedPublisher announces freshly created pending orders.
type CreatedPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// CheckoutConfig holds the non-dependency knobs of the broker.
type CheckoutConfig struct {
	Currency      string
	SuccessURL    string
	CancelURL     string
	FreeThreshold int64
}

// CheckoutService creates pending orders and hands them to a payment
// provider. It never marks an order paid; that is the reconciliation
// engine's job, driven by server-to-server notifications only.
type CheckoutService struct {
	store     CheckoutStore
	providers map[string]provider.SessionCreator
	publisher CreatedPublisher
	cfg       CheckoutConfig
	logger    *zap.Logger
}

// NewCheckoutService creates a checkout session broker. publisher may be nil.
func NewCheckoutService(st CheckoutStore, providers map[string]provider.SessionCreator, publisher CreatedPublisher, cfg CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		store:     st,
		providers: providers,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest represents a request to start a checkout session.
type CheckoutRequest struct {
	Email    string            `json:"email" binding:"required,email"`
	Country  string            `json:"country" binding:"required"`
	Provider string            `json:"provider" binding:"required"`
	Items    []CheckoutItemReq `json:"items" binding:"required,min=1"`
}

// CheckoutItemReq represents one requested product line.
type CheckoutItemReq struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse is returned to the storefront. RedirectURL points at the
// provider-hosted payment page.
type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// StartCheckout creates a pending order (quantities clamped to available
// stock), materializes a shipping quote as a synthetic order line, and asks
// the chosen provider for a hosted payment session carrying the order id as
// opaque metadata. A provider failure leaves the pending order in place.
func (cs *CheckoutService) StartCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.StartCheckout")
	defer span.End()

	sessionCreator, ok := cs.providers[req.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	quote, lines, err := cs.quoteShipping(ctx, req)
	if err != nil {
		return nil, err
	}

	var shippingLine *store.ShippingLine
	if quote.Amount > 0 {
		shippingLine = &store.ShippingLine{Amount: quote.Amount, Label: quote.Label}
	}

	order, items, err := cs.store.CreateOrder(ctx, req.Email, req.Country, cs.cfg.Currency, lines, shippingLine)
	if err != nil {
		if errors.Is(err, store.ErrNoPurchasableLines) {
			util.CheckoutsFailedTotal.WithLabelValues("no_purchasable_lines").Inc()
			return nil, ErrEmptyOrder
		}
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	cs.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int64("total", order.TotalAmount),
		zap.String("provider", req.Provider))

	if cs.publisher != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			Email:       order.Email,
			TotalAmount: order.TotalAmount,
			Provider:    req.Provider,
			Items:       itemData(items),
		}
		if err := cs.publisher.PublishOrderCreated(ctx, event); err != nil {
			cs.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	sessionItems := make([]provider.SessionItem, len(items))
	for i, item := range items {
		sessionItems[i] = provider.SessionItem{
			Label:     item.Label,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	session, err := sessionCreator.CreateSession(ctx, provider.SessionRequest{
		OrderID:    order.ID,
		Currency:   order.Currency,
		SuccessURL: cs.cfg.SuccessURL,
		CancelURL:  cs.cfg.CancelURL,
		Items:      sessionItems,
	})
	if err != nil {
		// The pending order is deliberately left as-is; stale pending
		// orders are reaped by a separate housekeeping job.
		util.CheckoutsFailedTotal.WithLabelValues("provider_error").Inc()
		cs.logger.Error("Payment session creation failed",
			zap.String("order_id", order.ID),
			zap.String("provider", req.Provider),
			zap.Error(err))
		return nil, &SessionCreationError{Provider: req.Provider, OrderID: order.ID, Err: err}
	}

	util.CheckoutSessionsTotal.WithLabelValues(req.Provider).Inc()

	return &CheckoutResponse{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
	}, nil
}

// quoteShipping estimates parcel weight and subtotal from the live catalog
// (clamping the way order creation will) and runs the rate calculator. The
// estimate may be replaced later by the provider's authoritative amount.
func (cs *CheckoutService) quoteShipping(ctx context.Context, req *CheckoutRequest) (shipping.Quote, []store.OrderLine, error) {
	ids := make([]int64, len(req.Items))
	lines := make([]store.OrderLine, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
		lines[i] = store.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	products, err := cs.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return shipping.Quote{}, nil, err
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var weight int
	var subtotal int64
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok || !p.Active || p.Stock <= 0 {
			continue
		}
		qty := item.Quantity
		if qty > p.Stock {
			qty = p.Stock
		}
		weight += p.WeightG * qty
		subtotal += p.Price * int64(qty)
	}

	quote := shipping.CalcQuote(req.Country, weight, subtotal, cs.cfg.FreeThreshold)
	util.ShippingQuotesTotal.WithLabelValues(quote.Zone.String()).Inc()
	return quote, lines, nil
}

func itemData(items []models.OrderItem) []models.OrderItemData {
	data := make([]models.OrderItemData, len(items))
	for i, item := range items {
		data[i] = models.OrderItemData{
			ProductID: item.ProductID.Int64,
			Label:     item.Label,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return data
}
