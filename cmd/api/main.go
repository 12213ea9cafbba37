package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/config"
	"github.com/Nijaek/analytics-dashboard/internal/handler"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/logger"
	"github.com/Nijaek/analytics-dashboard/internal/queue/redisstream"
	"github.com/Nijaek/analytics-dashboard/internal/repository/clickhouse"
	"github.com/Nijaek/analytics-dashboard/internal/service"
	"github.com/Nijaek/analytics-dashboard/internal/ticket"
)

func main() {
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

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	ingestKeys, err := cfg.Auth.IngestKeyMap()
	if err != nil {
		log.Fatal("Invalid ingest key configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize Redis stream client
	queueClient, err := redisstream.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Failed to close Redis client", zap.Error(err))
		}
	}()

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	// Initialize repository
	repo := clickhouse.NewRepository(clickhouseClient, log)

	// Live fan-out, tickets and the queue share the one Redis connection
	broadcaster := live.NewRedisBroadcaster(queueClient.Redis(), log)
	tickets := ticket.NewRedisIssuer(queueClient.Redis(), log)
	hub := live.NewHub(log)
	go hub.Run(ctx, queueClient.Redis())

	// Initialize services
	ingestService := service.NewIngestService(queueClient, repo, broadcaster, cfg.Service.SecretKey, log)
	analyticsService := service.NewAnalyticsService(repo, repo, log)

	// Initialize handler
	h := handler.NewHandler(ingestService, analyticsService, tickets, hub, ingestKeys, cfg.Auth.DashboardToken, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	go func() {
		log.Info("API server starting", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API server gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
}
