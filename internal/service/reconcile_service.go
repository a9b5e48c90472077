package service

import (
	"context"
	"errors"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/store"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TxStore opens an order-scoped transaction with the order row locked.
type TxStore interface {
	BeginOrderTx(ctx context.Context, orderID string) (store.OrderTx, error)
}

// Deduper is a best-effort fast path for duplicate notifications. A miss or
// an error always falls through to the transaction, which is the real
// idempotence guarantee.
type Deduper interface {
	SeenNotification(ctx context.Context, orderID, externalID string) (bool, error)
	MarkNotification(ctx context.Context, orderID, externalID string) error
}

// FinalizePublisher announces committed finalizations to the dispatcher.
type FinalizePublisher interface {
	PublishOrderFinalized(ctx context.Context, event *models.OrderFinalizedEvent) error
}

// FinalizeResult reports what a finalize call did.
type FinalizeResult struct {
	OrderID          string `json:"order_id"`
	Applied          bool   `json:"applied"`
	AlreadyFinalized bool   `json:"already_finalized"`
	InvoiceNumber    string `json:"invoice_number,omitempty"`
}

// ReconcileService performs the idempotent pending->paid transition driven
// by provider notifications.
type ReconcileService struct {
	txStore   TxStore
	dedup     Deduper
	publisher FinalizePublisher
	logger    *zap.Logger
}

// NewReconcileService creates a reconciliation engine. dedup and publisher
// may be nil.
func NewReconcileService(txStore TxStore, dedup Deduper, publisher FinalizePublisher) *ReconcileService {
	return &ReconcileService{
		txStore:   txStore,
		dedup:     dedup,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Finalize applies the pending->paid transition for a verified notification.
// Re-deliveries for an already finalized order are acknowledged as no-op
// successes. All side effects (stock decrement, shipping replacement, total
// recomputation, invoice assignment) happen inside one row-locked
// transaction; nothing is visible to a concurrent caller before commit.
func (rs *ReconcileService) Finalize(ctx context.Context, env models.NotificationEnvelope) (*FinalizeResult, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.Finalize")
	defer span.End()

	if env.OrderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "missing correlation value"}
	}

	util.WebhookEventsTotal.WithLabelValues(env.Provider).Inc()
	start := time.Now()
	defer func() {
		util.FinalizeLatency.Observe(time.Since(start).Seconds())
	}()

	if rs.dedup != nil {
		seen, err := rs.dedup.SeenNotification(ctx, env.OrderID, env.ExternalID)
		if err != nil {
			rs.logger.Warn("Notification dedup check failed, falling through to DB",
				zap.String("order_id", env.OrderID), zap.Error(err))
		} else if seen {
			rs.logger.Info("Notification already processed",
				zap.String("order_id", env.OrderID),
				zap.String("external_id", env.ExternalID))
			return &FinalizeResult{OrderID: env.OrderID, AlreadyFinalized: true}, nil
		}
	}

	tx, err := rs.txStore.BeginOrderTx(ctx, env.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	defer tx.Rollback()

	order := tx.Order()

	// Check-then-act under the row lock: any non-pending status means a
	// previous delivery (or an admin override) already settled the order.
	if order.Status != models.OrderStatusPending {
		rs.logger.Info("Order already finalized",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status),
			zap.String("external_id", env.ExternalID))
		util.FinalizeDuplicatesTotal.Inc()
		result := &FinalizeResult{OrderID: order.ID, AlreadyFinalized: true}
		if order.InvoiceNumber.Valid {
			result.InvoiceNumber = order.InvoiceNumber.String
		}
		return result, nil
	}

	if err := tx.MarkPaid(ctx, env.ExternalID); err != nil {
		return nil, err
	}

	items, err := tx.Items(ctx)
	if err != nil {
		return nil, err
	}

	shippingLabel := "Shipping"
	for _, item := range items {
		if item.IsShipping() {
			shippingLabel = item.Label
			continue
		}
		found, err := tx.DecrementStock(ctx, item.ProductID.Int64, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !found {
			// A since-deleted product skips its stock step but does not
			// abort the rest of the order.
			rs.logger.Warn("Product missing during stock decrement, line skipped",
				zap.String("order_id", order.ID),
				zap.Int64("product_id", item.ProductID.Int64))
			util.FinalizePartialLinesTotal.Inc()
		}
	}

	// Only the authoritative event class may touch the shipping line;
	// lower tiers would otherwise race in duplicates.
	if env.AuthoritativeForShipping && env.ReportedShipping != nil {
		if err := tx.ReplaceShippingLine(ctx, *env.ReportedShipping, shippingLabel); err != nil {
			return nil, err
		}
	}

	total, err := tx.RecomputeTotal(ctx)
	if err != nil {
		return nil, err
	}
	if env.ReportedTotal != 0 && env.ReportedTotal != total {
		// The provider may net out discounts we do not model; our own line
		// sum stays the write of record.
		rs.logger.Warn("Provider total differs from recomputed total",
			zap.String("order_id", order.ID),
			zap.Int64("reported", env.ReportedTotal),
			zap.Int64("recomputed", total))
		util.FinalizeTotalMismatchTotal.Inc()
	}

	invoiceNumber, err := tx.AssignInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	util.OrdersFinalizedTotal.Inc()
	rs.logger.Info("Order finalized",
		zap.String("order_id", order.ID),
		zap.String("invoice_number", invoiceNumber),
		zap.String("provider", env.Provider),
		zap.Int64("total", total))

	if rs.dedup != nil {
		if err := rs.dedup.MarkNotification(ctx, env.OrderID, env.ExternalID); err != nil {
			rs.logger.Warn("Failed to mark notification processed", zap.Error(err))
		}
	}

	// Dispatch happens outside the transaction; a failure here must never
	// roll back or retry the finalize.
	if rs.publisher != nil {
		event := &models.OrderFinalizedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderFinalized,
				Timestamp: time.Now(),
			},
			OrderID:       order.ID,
			Email:         order.Email,
			TotalAmount:   total,
			InvoiceNumber: invoiceNumber,
			Provider:      env.Provider,
			ExternalRef:   env.ExternalID,
		}
		if err := rs.publisher.PublishOrderFinalized(ctx, event); err != nil {
			rs.logger.Error("Failed to publish OrderFinalized event", zap.Error(err))
		}
	}

	return &FinalizeResult{
		OrderID:       order.ID,
		Applied:       true,
		InvoiceNumber: invoiceNumber,
	}, nil
}
