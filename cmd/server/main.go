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

	"github.com/washwatch/washwatch-go/internal/api"
	"github.com/washwatch/washwatch-go/internal/cache"
	"github.com/washwatch/washwatch-go/internal/classifier"
	"github.com/washwatch/washwatch-go/internal/config"
	"github.com/washwatch/washwatch-go/internal/features"
	"github.com/washwatch/washwatch-go/internal/logging"
	"github.com/washwatch/washwatch-go/internal/services"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	// The feature schema is the trained model's ordered feature list. Loaded
	// once at startup and injected read-only into the engine.
	schema, err := features.LoadSchema(cfg.Features.SchemaPath)
	if err != nil {
		log.Fatalf("Failed to load feature schema: %v", err)
	}
	logger.WithField("features", schema.Len()).Info("Feature schema loaded")

	// Classifier sidecar client. The service stays up when the sidecar is
	// down; batches then carry rule-only verdicts.
	scorerClient := classifier.NewClient(&cfg.Classifier)
	if _, err := scorerClient.HealthCheck(context.Background()); err != nil {
		logger.WithError(err).Warn("Classifier sidecar unreachable at startup, verdicts will be rule-only until it recovers")
	}

	// Suspicious-wallet registry. Optional: detection works without it.
	var registry cache.WalletRegistry
	if cfg.Registry.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, suspicious-wallet registry disabled")
		} else {
			registry = cache.NewRedisWalletRegistry(
				redisClient,
				time.Duration(cfg.Registry.TTLHours)*time.Hour,
				cfg.Registry.Prefix,
				logger,
			)
			defer func() {
				_ = redisClient.Close()
			}()
		}
	}

	detector := services.NewDetectorService(cfg, schema, scorerClient, registry, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, detector, registry, scorerClient, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
