package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckoutStore struct {
	products map[int64]models.Product

	createErr    error
	lastShipping *store.ShippingLine
	lastCurrency string
}

func (s *fakeCheckoutStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeCheckoutStore) CreateOrder(_ context.Context, email, country, currency string, lines []store.OrderLine, shippingLine *store.ShippingLine) (*models.Order, []models.OrderItem, error) {
	if s.createErr != nil {
		return nil, nil, s.createErr
	}
	s.lastShipping = shippingLine
	s.lastCurrency = currency

	order := &models.Order{
		ID:       "order-test",
		Email:    email,
		Country:  country,
		Currency: currency,
		Status:   models.OrderStatusPending,
	}
	var items []models.OrderItem
	for _, line := range lines {
		p, ok := s.products[line.ProductID]
		if !ok || !p.Active || p.Stock <= 0 {
			continue
		}
		qty := line.Quantity
		if qty > p.Stock {
			qty = p.Stock
		}
		items = append(items, models.OrderItem{
			OrderID:   order.ID,
			ProductID: sql.NullInt64{Int64: p.ID, Valid: true},
			Label:     p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
		})
		order.TotalAmount += p.Price * int64(qty)
	}
	if len(items) == 0 {
		return nil, nil, store.ErrNoPurchasableLines
	}
	if shippingLine != nil {
		items = append(items, models.OrderItem{
			OrderID:   order.ID,
			Label:     shippingLine.Label,
			Quantity:  1,
			UnitPrice: shippingLine.Amount,
		})
		order.TotalAmount += shippingLine.Amount
	}
	return order, items, nil
}

type fakeSessionCreator struct {
	err     error
	lastReq provider.SessionRequest
	calls   int
}

func (f *fakeSessionCreator) CreateSession(_ context.Context, req provider.SessionRequest) (*provider.Session, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Session{ID: "sess_123", RedirectURL: "https://pay.example.com/sess_123"}, nil
}

type fakeCreatedPublisher struct {
	events []*models.OrderCreatedEvent
}

func (p *fakeCreatedPublisher) PublishOrderCreated(_ context.Context, event *models.OrderCreatedEvent) error {
	p.events = append(p.events, event)
	return nil
}

func vinyl(id int64, price int64, weight, stock int) models.Product {
	return models.Product{
		ID:      id,
		SKU:     fmt.Sprintf("BLU-%03d", id),
		Name:    fmt.Sprintf("Record %d", id),
		Price:   price,
		WeightG: weight,
		Stock:   stock,
		Active:  true,
	}
}

func checkoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Currency:      "EUR",
		SuccessURL:    "https://shop.example.com/thanks",
		CancelURL:     "https://shop.example.com/cart",
		FreeThreshold: 10000,
	}
}

func TestStartCheckout(t *testing.T) {
	st := &fakeCheckoutStore{products: map[int64]models.Product{
		1: vinyl(1, 2499, 250, 10),
	}}
	card := &fakeSessionCreator{}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{
		models.ProviderCard: card,
	}, nil, checkoutConfig())

	resp, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "DE",
		Provider: models.ProviderCard,
		Items:    []CheckoutItemReq{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "order-test", resp.OrderID)
	assert.Equal(t, "sess_123", resp.SessionID)
	assert.Equal(t, "https://pay.example.com/sess_123", resp.RedirectURL)

	// 500g domestic parcel fits the warenpost 500g bracket exactly.
	require.NotNil(t, st.lastShipping)
	assert.Equal(t, int64(249), st.lastShipping.Amount)
	assert.Equal(t, "EUR", st.lastCurrency)

	// The session mirrors the persisted lines, shipping included.
	require.Len(t, card.lastReq.Items, 2)
	assert.Equal(t, "order-test", card.lastReq.OrderID)
	assert.Equal(t, "https://shop.example.com/thanks", card.lastReq.SuccessURL)
}

func TestStartCheckoutUnknownProvider(t *testing.T) {
	st := &fakeCheckoutStore{products: map[int64]models.Product{
		1: vinyl(1, 2499, 250, 10),
	}}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{}, nil, checkoutConfig())

	_, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "DE",
		Provider: "bankwire",
		Items:    []CheckoutItemReq{{ProductID: 1, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestStartCheckoutNoPurchasableLines(t *testing.T) {
	out := vinyl(2, 1999, 180, 0)
	st := &fakeCheckoutStore{products: map[int64]models.Product{2: out}}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{
		models.ProviderCard: &fakeSessionCreator{},
	}, nil, checkoutConfig())

	_, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "DE",
		Provider: models.ProviderCard,
		Items:    []CheckoutItemReq{{ProductID: 2, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestStartCheckoutProviderFailureKeepsOrder(t *testing.T) {
	st := &fakeCheckoutStore{products: map[int64]models.Product{
		1: vinyl(1, 2499, 250, 10),
	}}
	card := &fakeSessionCreator{err: fmt.Errorf("upstream 503")}
	pub := &fakeCreatedPublisher{}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{
		models.ProviderCard: card,
	}, pub, checkoutConfig())

	_, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "DE",
		Provider: models.ProviderCard,
		Items:    []CheckoutItemReq{{ProductID: 1, Quantity: 1}},
	})

	var sErr *SessionCreationError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, models.ProviderCard, sErr.Provider)
	assert.Equal(t, "order-test", sErr.OrderID)

	// The order was created and announced before the provider call; it stays
	// pending for the housekeeping reaper rather than being torn down here.
	require.Len(t, pub.events, 1)
	assert.Equal(t, "order-test", pub.events[0].OrderID)
}

func TestStartCheckoutFreeShippingThreshold(t *testing.T) {
	st := &fakeCheckoutStore{products: map[int64]models.Product{
		1: vinyl(1, 6000, 300, 10),
	}}
	card := &fakeSessionCreator{}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{
		models.ProviderCard: card,
	}, nil, checkoutConfig())

	// Subtotal 12000 crosses the 10000 threshold: no shipping line at all.
	resp, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "DE",
		Provider: models.ProviderCard,
		Items:    []CheckoutItemReq{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Nil(t, st.lastShipping)
	require.Len(t, card.lastReq.Items, 1)
	assert.Equal(t, "order-test", resp.OrderID)
}

func TestStartCheckoutClampedQuoteWeight(t *testing.T) {
	// Quoting uses the clamped quantity, not the requested one: 10 requested
	// but only 2 in stock keeps the parcel in the warenpost 500g bracket.
	st := &fakeCheckoutStore{products: map[int64]models.Product{
		1: vinyl(1, 1000, 200, 2),
	}}
	card := &fakeSessionCreator{}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{
		models.ProviderCard: card,
	}, nil, checkoutConfig())

	_, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "DE",
		Provider: models.ProviderCard,
		Items:    []CheckoutItemReq{{ProductID: 1, Quantity: 10}},
	})
	require.NoError(t, err)
	require.NotNil(t, st.lastShipping)
	assert.Equal(t, int64(249), st.lastShipping.Amount)
}

func TestStartCheckoutPublishesCreatedEvent(t *testing.T) {
	st := &fakeCheckoutStore{products: map[int64]models.Product{
		1: vinyl(1, 2499, 250, 10),
	}}
	pub := &fakeCreatedPublisher{}
	cs := NewCheckoutService(st, map[string]provider.SessionCreator{
		models.ProviderWallet: &fakeSessionCreator{},
	}, pub, checkoutConfig())

	_, err := cs.StartCheckout(context.Background(), &CheckoutRequest{
		Email:    "buyer@example.com",
		Country:  "AT",
		Provider: models.ProviderWallet,
		Items:    []CheckoutItemReq{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, models.EventTypeOrderCreated, event.EventType)
	assert.Equal(t, models.ProviderWallet, event.Provider)
	assert.NotEmpty(t, event.EventID)
	require.Len(t, event.Items, 2)
}
