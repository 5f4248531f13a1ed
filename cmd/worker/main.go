package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	logrus "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"perpcontrol/internal/executor"
	"perpcontrol/internal/reconcile"
	"perpcontrol/internal/retryqueue"
	"perpcontrol/internal/signal"
	"perpcontrol/internal/sizing"
	"perpcontrol/internal/store"
	"perpcontrol/pkg/config"
	"perpcontrol/pkg/prices"
	"perpcontrol/pkg/venue"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   "logs/worker.log",
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}))

	// Initialize database
	config.InitDB()

	// Initialize RabbitMQ
	config.InitRabbitMQ()
	defer config.RabbitMQ.Close()

	keys := venue.NewKeyManager(os.Getenv("KEY_ENCRYPTION_PASSWORD"))
	venueClient := venue.NewClient(os.Getenv("VENUE_API_URL"), keys, 15*time.Second)
	confirmer := venue.NewConfirmer(os.Getenv("SOLANA_RPC_ENDPOINT"))

	priceCache := prices.NewCache(30 * time.Second)
	priceClient := prices.NewClient(os.Getenv("VENUE_API_URL"), priceCache)

	markets, err := sizing.LoadMarketRegistry(config.DB)
	if err != nil {
		logrus.Fatal("Failed to load market registry: ", err)
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
	cleaner := reconcile.NewCleaner(st, venueClient, exec, 0)

	// Keep the price cache warm from the venue's oracle feed
	if os.Getenv("VENUE_WS_URL") != "" {
		streamer := prices.NewStreamer(os.Getenv("VENUE_WS_URL"), markets.Symbols(), priceCache)
		streamer.Start()
		defer streamer.Stop()
	}

	// Background maintenance
	c := cron.New()
	c.AddFunc("@every 30s", func() {
		if err := queue.Sweep(context.Background()); err != nil {
			logrus.Errorf("Retry sweep failed: %v", err)
		}
	})
	c.AddFunc("@every 5m", func() {
		reconciler.ReconcileAll(context.Background())
	})
	c.AddFunc("@every 1h", func() {
		cleaner.Sweep(context.Background())
	})
	c.Start()
	defer c.Stop()

	// Create consumer for the trade execution queue
	msgConsumer, err := config.NewConsumer(config.ExecutionQueue)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer msgConsumer.Close()

	logrus.Info("Trade execution worker started, waiting for messages...")

	// Start consuming messages
	err = msgConsumer.Consume(func(msg []byte) error {
		var job executor.ExecutionJob
		if err := json.Unmarshal(msg, &job); err != nil {
			logrus.Errorf("Failed to unmarshal execution job: %v", err)
			return err
		}

		logrus.WithField("intent_id", job.IntentID).Info("Received execution job")

		if err := svc.ExecuteIntentByID(context.Background(), job.IntentID); err != nil {
			logrus.WithField("intent_id", job.IntentID).Errorf("Execution failed: %v", err)
			return err
		}
		return nil
	})
	if err != nil {
		logrus.Fatal("Consumer stopped: ", err)
	}
}
