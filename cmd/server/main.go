package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/config"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/api"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/broker"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/dispatch"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider/card"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider/wallet"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/redisclient"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/service"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/store"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/util"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop core service")

	tp, err := util.InitTracer("shop-core", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Invoice.Prefix)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	cardClient := card.NewClient(cfg.Card.BaseURL, cfg.Card.APIKey)
	walletClient := wallet.NewClient(cfg.Wallet.BaseURL, cfg.Wallet.ClientID, cfg.Wallet.ClientSecret)

	checkoutService := service.NewCheckoutService(db,
		map[string]provider.SessionCreator{
			models.ProviderCard:   cardClient,
			models.ProviderWallet: walletClient,
		},
		eventPublisher,
		service.CheckoutConfig{
			Currency:      cfg.Shop.Currency,
			SuccessURL:    cfg.Shop.SuccessURL,
			CancelURL:     cfg.Shop.CancelURL,
			FreeThreshold: cfg.Shipping.FreeThreshold,
		})
	reconcileService := service.NewReconcileService(db, redisClient, eventPublisher)

	dispatcher := dispatch.NewDispatcher(db, dispatch.TextInvoiceGenerator{}, dispatch.LogMessenger{})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	dispatchConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	dispatchWorker := worker.NewDispatchWorker(dispatchConsumer, dispatcher)
	go func() {
		if err := dispatchWorker.Start(workerCtx); err != nil {
			log.Printf("Dispatch worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(checkoutService, reconcileService, db, db, redisClient, walletClient, cfg.Card.WebhookSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	dispatchWorker.Stop()

	log.Println("Server exited")
}
