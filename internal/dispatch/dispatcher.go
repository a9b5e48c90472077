// Package dispatch delivers post-finalize artifacts: the invoice document
// and the buyer's confirmation message. It runs strictly after the finalize
// transaction has committed; its failures are logged and never fed back
// into the reconciliation path.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/util"

	"go.uber.org/zap"
)

// DocumentGenerator renders the invoice artifact for a finalized order.
// Production wiring points this at the PDF rendering service.
type DocumentGenerator interface {
	GenerateDocument(ctx context.Context, order *models.Order, items []models.OrderItem, invoiceNumber string) ([]byte, error)
}

// Messenger delivers a best-effort message with an optional attachment.
// Production wiring points this at the transactional mail service.
type Messenger interface {
	SendMessage(ctx context.Context, to, subject, body string, attachment []byte) error
}

// OrderReader loads the finalized order for rendering.
type OrderReader interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
}

// Dispatcher reacts to finalized orders.
type Dispatcher struct {
	orders    OrderReader
	documents DocumentGenerator
	messenger Messenger
	logger    *zap.Logger
}

func NewDispatcher(orders OrderReader, documents DocumentGenerator, messenger Messenger) *Dispatcher {
	return &Dispatcher{
		orders:    orders,
		documents: documents,
		messenger: messenger,
		logger:    util.GetLogger(),
	}
}

// HandleOrderFinalized renders the invoice and sends the confirmation
// message for one finalized order. Errors are reported to the caller for
// logging and consumer retry, but a permanently failing dispatch never
// blocks the order itself, which is already paid and committed.
func (d *Dispatcher) HandleOrderFinalized(ctx context.Context, event *models.OrderFinalizedEvent) error {
	order, err := d.orders.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		util.DispatchesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load order %s: %w", event.OrderID, err)
	}
	items, err := d.orders.GetOrderItemsByOrderID(ctx, event.OrderID)
	if err != nil {
		util.DispatchesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load items for order %s: %w", event.OrderID, err)
	}

	doc, err := d.documents.GenerateDocument(ctx, order, items, event.InvoiceNumber)
	if err != nil {
		util.DispatchesTotal.WithLabelValues("error").Inc()
		d.logger.Error("Invoice document generation failed",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	subject := fmt.Sprintf("Order confirmation %s", event.InvoiceNumber)
	body := fmt.Sprintf("Thank you for your order. Your invoice %s is attached.", event.InvoiceNumber)
	if err := d.messenger.SendMessage(ctx, order.Email, subject, body, doc); err != nil {
		util.DispatchesTotal.WithLabelValues("error").Inc()
		d.logger.Error("Confirmation message failed",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	util.DispatchesTotal.WithLabelValues("ok").Inc()
	d.logger.Info("Order artifacts dispatched",
		zap.String("order_id", event.OrderID),
		zap.String("invoice_number", event.InvoiceNumber))
	return nil
}

// TextInvoiceGenerator is the default DocumentGenerator: a plain-text
// rendering used until the PDF service is wired in.
type TextInvoiceGenerator struct{}

func (TextInvoiceGenerator) GenerateDocument(_ context.Context, order *models.Order, items []models.OrderItem, invoiceNumber string) ([]byte, error) {
	out := fmt.Sprintf("Invoice %s\nOrder %s\nDate %s\n\n",
		invoiceNumber, order.ID, time.Now().Format("2006-01-02"))
	for _, item := range items {
		out += fmt.Sprintf("%-40s %3d x %8d = %10d\n",
			item.Label, item.Quantity, item.UnitPrice, item.LineTotal())
	}
	out += fmt.Sprintf("\nTotal: %d %s\n", order.TotalAmount, order.Currency)
	return []byte(out), nil
}

// LogMessenger is the default Messenger: it records the send instead of
// delivering it. Production wiring replaces it with the mail transport.
type LogMessenger struct{}

func (LogMessenger) SendMessage(_ context.Context, to, subject, _ string, attachment []byte) error {
	util.GetLogger().Info("Message dispatched",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("attachment_bytes", len(attachment)))
	return nil
}
