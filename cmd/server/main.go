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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quantsignal/advisor-go/internal/api"
	"github.com/quantsignal/advisor-go/internal/cache"
	"github.com/quantsignal/advisor-go/internal/config"
	"github.com/quantsignal/advisor-go/internal/logging"
	"github.com/quantsignal/advisor-go/internal/services"
	"github.com/quantsignal/advisor-go/internal/telemetry"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	provider, err := telemetry.Init(cfg.Telemetry.Enabled, cfg.Environment)
	if err != nil {
		logger.Fatalf("Failed to initialize telemetry: %v", err)
	}

	var (
		redisClient *redis.Client
		signalCache *cache.SignalCache
	)
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, running without signal cache")
			_ = redisClient.Close()
			redisClient = nil
		} else {
			signalCache = cache.NewSignalCache(redisClient, cfg.CacheTTL(), logger)
		}
		cancel()
	}

	analyzer := services.NewAnalyzer(cfg, logger, signalCache)
	backtester := services.NewBacktester(analyzer, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	api.SetupRoutes(router, logger, analyzer, backtester, redisClient)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Server.Port, "environment": cfg.Environment}).
			Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("telemetry shutdown failed")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server exited")
}
