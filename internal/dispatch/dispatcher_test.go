package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderReader struct {
	order *models.Order
	items []models.OrderItem
}

func (f *fakeOrderReader) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, fmt.Errorf("order %s not found", id)
	}
	return f.order, nil
}

func (f *fakeOrderReader) GetOrderItemsByOrderID(_ context.Context, _ string) ([]models.OrderItem, error) {
	return f.items, nil
}

type fakeMessenger struct {
	to         string
	subject    string
	attachment []byte
	err        error
	calls      int
}

func (f *fakeMessenger) SendMessage(_ context.Context, to, subject, _ string, attachment []byte) error {
	f.calls++
	f.to = to
	f.subject = subject
	f.attachment = attachment
	return f.err
}

func finalizedFixture() (*fakeOrderReader, *models.OrderFinalizedEvent) {
	reader := &fakeOrderReader{
		order: &models.Order{
			ID:          "order-1",
			Email:       "buyer@example.com",
			Currency:    "EUR",
			Status:      models.OrderStatusPaid,
			TotalAmount: 3498,
		},
		items: []models.OrderItem{
			{
				OrderID:   "order-1",
				ProductID: sql.NullInt64{Int64: 1, Valid: true},
				Label:     "Blue Vinyl",
				Quantity:  1,
				UnitPrice: 2999,
			},
			{OrderID: "order-1", Label: "DHL Paket", Quantity: 1, UnitPrice: 499},
		},
	}
	event := &models.OrderFinalizedEvent{
		OrderID:       "order-1",
		Email:         "buyer@example.com",
		TotalAmount:   3498,
		InvoiceNumber: "BLU-000042",
	}
	return reader, event
}

func TestHandleOrderFinalized(t *testing.T) {
	reader, event := finalizedFixture()
	messenger := &fakeMessenger{}
	d := NewDispatcher(reader, TextInvoiceGenerator{}, messenger)

	err := d.HandleOrderFinalized(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, 1, messenger.calls)
	assert.Equal(t, "buyer@example.com", messenger.to)
	assert.Equal(t, "Order confirmation BLU-000042", messenger.subject)
	assert.Contains(t, string(messenger.attachment), "BLU-000042")
	assert.Contains(t, string(messenger.attachment), "Blue Vinyl")
	assert.Contains(t, string(messenger.attachment), "DHL Paket")
}

func TestHandleOrderFinalizedUnknownOrder(t *testing.T) {
	messenger := &fakeMessenger{}
	d := NewDispatcher(&fakeOrderReader{}, TextInvoiceGenerator{}, messenger)

	err := d.HandleOrderFinalized(context.Background(), &models.OrderFinalizedEvent{OrderID: "missing"})
	assert.Error(t, err)
	assert.Zero(t, messenger.calls)
}

func TestHandleOrderFinalizedMessengerFailure(t *testing.T) {
	reader, event := finalizedFixture()
	messenger := &fakeMessenger{err: fmt.Errorf("smtp down")}
	d := NewDispatcher(reader, TextInvoiceGenerator{}, messenger)

	// The error surfaces for the consumer to retry; the order itself is
	// already committed and unaffected.
	err := d.HandleOrderFinalized(context.Background(), event)
	assert.ErrorContains(t, err, "smtp down")
}

func TestTextInvoiceGenerator(t *testing.T) {
	reader, _ := finalizedFixture()

	doc, err := TextInvoiceGenerator{}.GenerateDocument(context.Background(), reader.order, reader.items, "BLU-000042")
	require.NoError(t, err)

	text := string(doc)
	assert.Contains(t, text, "Invoice BLU-000042")
	assert.Contains(t, text, "Order order-1")
	assert.Contains(t, text, "Total: 3498 EUR")
}
