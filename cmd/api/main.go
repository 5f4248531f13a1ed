package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"perpcontrol/internal/executor"
	"perpcontrol/internal/handlers"
	"perpcontrol/internal/reconcile"
	"perpcontrol/internal/retryqueue"
	"perpcontrol/internal/routes"
	"perpcontrol/internal/signal"
	"perpcontrol/internal/sizing"
	"perpcontrol/internal/store"
	"perpcontrol/pkg/config"
	"perpcontrol/pkg/prices"
	"perpcontrol/pkg/venue"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	// Initialize database
	config.InitDB()
	if os.Getenv("RUN_MIGRATIONS") == "true" {
		config.ExecuteMigrations()
	}

	// Venue access
	keys := venue.NewKeyManager(os.Getenv("KEY_ENCRYPTION_PASSWORD"))
	venueClient := venue.NewClient(os.Getenv("VENUE_API_URL"), keys, 15*time.Second)
	confirmer := venue.NewConfirmer(os.Getenv("SOLANA_RPC_ENDPOINT"))

	priceCache := prices.NewCache(30 * time.Second)
	priceClient := prices.NewClient(os.Getenv("VENUE_API_URL"), priceCache)

	markets, err := sizing.LoadMarketRegistry(config.DB)
	if err != nil {
		log.Fatal("Failed to load market registry:", err)
	}

	st := store.New(config.DB)
	guard := signal.NewGuard(config.DB)
	sizer := sizing.NewSizer(markets, priceClient)
	exec := executor.New(venueClient, st, markets, priceClient)
	notifier := executor.LogNotifier{}
	locks := executor.NewLockRegistry()
	queue := retryqueue.New(st, exec, sizer, locks, notifier, retryqueue.Config{})
	svc := executor.NewService(st, guard, sizer, exec, locks, queue, notifier, 0)
	reconciler := reconcile.New(venueClient, confirmer, st, 0)

	// Initialize RabbitMQ (optional, will log warning if not configured)
	if os.Getenv("RABBITMQ_HOST") != "" {
		config.InitRabbitMQ()
		defer func() {
			if config.RabbitMQ != nil {
				config.RabbitMQ.Close()
			}
		}()
		pub, err := config.NewPublisher()
		if err != nil {
			log.Fatal("Failed to create publisher:", err)
		}
		svc = svc.WithPublisher(pub, config.ExecutionQueue)
		log.Println("RabbitMQ initialized successfully")
	} else {
		// No worker process in this mode, so the API runs the background
		// maintenance loops itself.
		log.Println("RabbitMQ not configured, executing trades in-process")
		c := cron.New()
		c.AddFunc("@every 30s", func() {
			if err := queue.Sweep(context.Background()); err != nil {
				log.Println("Retry sweep failed:", err)
			}
		})
		c.AddFunc("@every 5m", func() {
			reconciler.ReconcileAll(context.Background())
		})
		c.Start()
		defer c.Stop()
	}

	handlers.Setup(svc, st, reconciler, markets, keys)

	// Set up router
	r := routes.SetupRouter()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
