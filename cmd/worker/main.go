package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/config"
	"github.com/Nijaek/analytics-dashboard/internal/consumer"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/logger"
	"github.com/Nijaek/analytics-dashboard/internal/queue/redisstream"
	"github.com/Nijaek/analytics-dashboard/internal/repository/clickhouse"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting worker service",
		zap.String("environment", cfg.Service.Environment))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize ClickHouse client
	chClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}()

	// Initialize repository
	repo := clickhouse.NewRepository(chClient, log)

	// Initialize schema (create tables if not exist)
	if err := repo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", zap.Error(err))
	}
	log.Info("Database schema initialized")

	// Initialize Redis stream client and its consumer group
	queueClient, err := redisstream.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Failed to close Redis client", zap.Error(err))
		}
	}()

	if err := queueClient.EnsureGroup(ctx); err != nil {
		log.Fatal("Failed to create consumer group", zap.Error(err))
	}
	queueClient.ConfigureClaim(
		time.Duration(cfg.Consumer.VisibilityTimeoutSec)*time.Second,
		time.Duration(cfg.Consumer.ClaimBlockMs)*time.Millisecond,
	)

	// Initialize consumer pipeline and aggregator
	broadcaster := live.NewRedisBroadcaster(queueClient.Redis(), log)
	c := consumer.NewConsumer(cfg, queueClient, repo, broadcaster, log)
	aggregator := consumer.NewAggregator(repo, repo, time.Duration(cfg.Aggregator.IntervalSec)*time.Second, log)

	// Start health check endpoint
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := repo.Ping(r.Context()); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if err := queueClient.Ping(r.Context()); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		addr := ":" + cfg.Consumer.HealthCheckPort
		log.Info("Health check server starting", zap.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error("Health check server error", zap.Error(err))
		}
	}()

	log.Info("Worker starting")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := c.Start(ctx); err != nil {
			log.Error("Consumer error", zap.Error(err))
		}
	}()

	go func() {
		defer wg.Done()
		if err := aggregator.Start(ctx); err != nil {
			log.Error("Aggregator error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down worker gracefully")
	wg.Wait()
}
