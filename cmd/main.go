package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"violation-service/internal/api"
	"violation-service/internal/config"
	"violation-service/internal/db"
	"violation-service/internal/db/memory"
	"violation-service/internal/evidence"
	"violation-service/internal/kafka"
	"violation-service/internal/lifecycle"
	"violation-service/internal/logging"
	"violation-service/internal/notification"
	"violation-service/internal/providers"
	"violation-service/internal/realtime"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Entity store
	var store db.Store
	if cfg.Store.Driver == "memory" {
		logger.Warnf("Using in-memory store; data is lost on restart")
		store = memory.New()
	} else {
		dbConn, err := db.New(cfg.DB.DSN)
		if err != nil {
			logger.Errorf("Failed to connect to database: %v", err)
			log.Fatalf("Database connection failed: %v", err)
		}
		if err := dbConn.Migrate(ctx); err != nil {
			logger.Errorf("Failed to apply schema: %v", err)
			log.Fatalf("Database migration failed: %v", err)
		}
		store = dbConn
	}
	defer store.Close()

	blobs, err := evidence.Open(ctx, cfg)
	if err != nil {
		logger.Errorf("Failed to open evidence store: %v", err)
		log.Fatalf("Evidence store failed: %v", err)
	}

	// Push hub, optionally fanned out across instances
	hub := realtime.NewHub(logger, cfg.Realtime.MaxConnsPerUser, cfg.Realtime.PingInterval)
	if cfg.Redis.URI != "" {
		backplane, err := realtime.NewRedisBackplane(cfg.Redis.URI, logger)
		if err != nil {
			logger.Errorf("Redis backplane unavailable, running single-instance: %v", err)
		} else {
			defer backplane.Close()
			hub.Attach(ctx, backplane)
		}
	}

	// Notification emitter
	emitter := notification.New(store, hub, logger, notification.Options{
		QueueSize: cfg.Dispatch.QueueSize,
		Workers:   cfg.Dispatch.Workers,
	})
	if cfg.Telegram.BotToken != "" {
		staff, err := providers.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.StaffChatID, cfg.Telegram.RateLimit, logger)
		if err != nil {
			logger.Errorf("Telegram staff mirror disabled: %v", err)
		} else {
			emitter.SetStaffNotifier(staff)
		}
	}
	var wg sync.WaitGroup
	emitter.Start(&wg)

	engine := lifecycle.NewEngine(store, emitter, blobs, logger)

	// Campus events
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, emitter, logger)
		consumer.Start(ctx, &wg)
	} else {
		logger.Warnf("KAFKA_BROKER not set; campus events are not consumed")
	}

	// Start API server
	router := api.NewRouter(api.Deps{Engine: engine, Emitter: emitter, Hub: hub}, logger, cfg)
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			cancel()
		}
	}()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Infof("Shutting down...")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	cancel()
	emitter.Stop()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	wg.Wait()
	logger.Infof("Service stopped")
}
