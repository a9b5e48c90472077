package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_created_total",
		Help: "Total number of pending orders created",
	})

	OrdersFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_finalized_total",
		Help: "Total number of orders transitioned to paid",
	})

	FinalizeDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_finalize_duplicates_total",
		Help: "Total number of notifications acknowledged as idempotent no-ops",
	})

	FinalizePartialLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_finalize_partial_lines_total",
		Help: "Total number of order lines whose stock step was skipped (product missing)",
	})

	FinalizeTotalMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_finalize_total_mismatch_total",
		Help: "Total number of finalizations where the provider-reported total differed",
	})

	FinalizeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_finalize_latency_seconds",
		Help:    "Latency of finalize calls",
		Buckets: prometheus.DefBuckets,
	})

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_checkout_sessions_total",
		Help: "Total number of payment sessions created",
	}, []string{"provider"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_checkouts_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_webhook_events_total",
		Help: "Total number of provider notifications accepted for processing",
	}, []string{"provider"})

	WebhookRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_webhook_rejected_total",
		Help: "Total number of provider notifications rejected before processing",
	}, []string{"provider", "reason"})

	ShippingQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_shipping_quotes_total",
		Help: "Total number of shipping quotes computed",
	}, []string{"zone"})

	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_dispatches_total",
		Help: "Total number of artifact dispatch attempts",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
