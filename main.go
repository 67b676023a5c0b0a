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

	"webpush-service/internal/api"
	"webpush-service/internal/config"
	"webpush-service/internal/db"
	"webpush-service/internal/kafka"
	"webpush-service/internal/logging"
	"webpush-service/internal/providers"
	"webpush-service/internal/redis"
	"webpush-service/internal/services"
	"webpush-service/internal/utils"
	"webpush-service/pkg/webhook"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(ctx, cfg.DB.DSN, logger)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := utils.Retry(ctx, logger, 5, 2*time.Second, func() error { return dbConn.Ping(ctx) }); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}

	// Temporary approval tokens live in Redis
	redisClient, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Redis init failed: %v", err)
	}
	defer redisClient.Close()
	if err := utils.Retry(ctx, logger, 5, 2*time.Second, func() error { return redisClient.Ping(ctx) }); err != nil {
		log.Fatalf("Redis unreachable: %v", err)
	}

	hookOpts := webhook.Options{Timeout: cfg.Webhook.Timeout}
	if !cfg.Webhook.AllowLocal {
		hookOpts.Blocked = utils.IsLocalAddr
	}

	// Initialize notification service
	svc := services.New(
		dbConn,
		redis.NewTokenStore(redisClient.Client),
		providers.NewWebPush(cfg.Push.TTL),
		webhook.New(hookOpts),
		logger,
		cfg,
	)
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Kafka ingestion is optional
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" && cfg.Kafka.Topic != "" {
		consumer = kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, svc, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	} else {
		logger.Info("KAFKA_BROKER not set, queue ingestion disabled")
	}

	// Start API server
	handler := api.NewHandler(svc, map[string]api.Pinger{"postgres": dbConn, "redis": redisClient}, logger, cfg)
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(logger, cfg, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	// Live streams only end once the hub closes them.
	svc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	if consumer != nil {
		consumer.Close()
	}
	wg.Wait()
	logger.Info("Service stopped")
}
