package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider/card"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/service"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderReader serves storefront order lookups.
type OrderReader interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error)
}

// CatalogReader serves storefront product lookups.
type CatalogReader interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// StockCache is the availability projection backing the storefront. It is a
// read-side cache only; order creation always checks the database.
type StockCache interface {
	SetStock(ctx context.Context, productID int64, stock int) error
	GetStock(ctx context.Context, productID int64) (int, bool, error)
}

// CaptureClient performs the wallet provider's synchronous capture call.
type CaptureClient interface {
	CaptureOrder(ctx context.Context, providerOrderID string) (*models.NotificationEnvelope, error)
}

// Handler contains HTTP handlers
type Handler struct {
	checkout      *service.CheckoutService
	reconcile     *service.ReconcileService
	orders        OrderReader
	catalog       CatalogReader
	stockCache    StockCache
	walletCapture CaptureClient
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler. stockCache may be nil, in which
// case availability reads go straight to the database.
func NewHandler(
	checkout *service.CheckoutService,
	reconcile *service.ReconcileService,
	orders OrderReader,
	catalog CatalogReader,
	stockCache StockCache,
	walletCapture CaptureClient,
	webhookSecret string,
) *Handler {
	return &Handler{
		checkout:      checkout,
		reconcile:     reconcile,
		orders:        orders,
		catalog:       catalog,
		stockCache:    stockCache,
		walletCapture: walletCapture,
		webhookSecret: webhookSecret,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id/availability", h.productAvailability)
		v1.POST("/checkout", h.startCheckout)
		v1.POST("/webhooks/card", h.cardWebhook)
		v1.POST("/wallet/capture/:providerOrderID", h.walletCaptureOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// startCheckout creates a pending order and a provider payment session.
func (h *Handler) startCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.StartCheckout(c.Request.Context(), &req)
	if err != nil {
		var sessionErr *service.SessionCreationError
		switch {
		case errors.Is(err, service.ErrUnknownProvider):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment provider"})
		case errors.Is(err, service.ErrEmptyOrder):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No purchasable items in order"})
		case errors.As(err, &sessionErr):
			// No internal identifiers leak to the buyer; the pending order
			// stays and can be retried.
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be started"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start checkout"})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// cardWebhook receives signed asynchronous events from the card processor.
// Once the underlying order state is correct, including when a previous
// delivery already finalized it, the response is a success acknowledgement
// so the provider stops retrying.
func (h *Handler) cardWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable payload"})
		return
	}

	sig := c.GetHeader(card.SignatureHeader)
	if err := card.VerifySignature(payload, sig, h.webhookSecret, time.Now(), card.DefaultTolerance); err != nil {
		util.WebhookRejectedTotal.WithLabelValues(models.ProviderCard, "signature").Inc()
		h.logger.Warn("Webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	env, err := card.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, card.ErrUnsupportedType) {
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		util.WebhookRejectedTotal.WithLabelValues(models.ProviderCard, "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event"})
		return
	}

	h.finalizeFromNotification(c, *env)
}

// walletCaptureOrder captures an approved wallet order; the capture result
// feeds the same finalize contract the card webhooks use.
func (h *Handler) walletCaptureOrder(c *gin.Context) {
	providerOrderID := c.Param("providerOrderID")
	if providerOrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing provider order id"})
		return
	}

	env, err := h.walletCapture.CaptureOrder(c.Request.Context(), providerOrderID)
	if err != nil {
		h.logger.Error("Wallet capture failed",
			zap.String("provider_order_id", providerOrderID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment could not be completed"})
		return
	}

	h.finalizeFromNotification(c, *env)
}

func (h *Handler) finalizeFromNotification(c *gin.Context, env models.NotificationEnvelope) {
	// Malformed correlation data is logged and dropped without an ack;
	// a structurally valid but unknown order id is acknowledged so the
	// provider stops retrying.
	if _, err := uuid.Parse(env.OrderID); err != nil {
		util.WebhookRejectedTotal.WithLabelValues(env.Provider, "malformed_correlation").Inc()
		h.logger.Warn("Dropping notification with malformed correlation id",
			zap.String("order_id", env.OrderID),
			zap.String("external_id", env.ExternalID),
			zap.String("provider", env.Provider))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed correlation id"})
		return
	}

	result, err := h.reconcile.Finalize(c.Request.Context(), env)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			h.logger.Warn("Notification for unknown order acknowledged",
				zap.String("order_id", env.OrderID),
				zap.String("provider", env.Provider))
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		// Transient store failures are safe to retry: finalize is
		// idempotent by construction.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Finalize failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"result":   result,
	})
}

// listProducts returns the catalog and refreshes the stock projection.
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}

	if h.stockCache != nil {
		for _, p := range products {
			if err := h.stockCache.SetStock(c.Request.Context(), p.ID, p.Stock); err != nil {
				h.logger.Warn("Stock projection refresh failed",
					zap.Int64("product_id", p.ID), zap.Error(err))
				break
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// productAvailability serves availability from the stock projection, falling
// back to the database on a cache miss.
func (h *Handler) productAvailability(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	if h.stockCache != nil {
		if stock, ok, err := h.stockCache.GetStock(c.Request.Context(), id); err == nil && ok {
			c.JSON(http.StatusOK, gin.H{
				"product_id": id,
				"stock":      stock,
				"available":  stock > 0,
			})
			return
		}
	}

	product, err := h.catalog.GetProductByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if h.stockCache != nil {
		if err := h.stockCache.SetStock(c.Request.Context(), product.ID, product.Stock); err != nil {
			h.logger.Warn("Stock projection write failed",
				zap.Int64("product_id", product.ID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": product.ID,
		"stock":      product.Stock,
		"available":  product.Active && product.Stock > 0,
	})
}

// listOrders returns a buyer's orders by email.
func (h *Handler) listOrders(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing email parameter"})
		return
	}

	orders, err := h.orders.GetOrdersByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.orders.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	items, err := h.orders.GetOrderItemsByOrderID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
