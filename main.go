package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/prepstack/exam-service/internal/config"
	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/handlers"
	"github.com/prepstack/exam-service/internal/repositories/postgres"
	"github.com/prepstack/exam-service/internal/services"
	"github.com/prepstack/exam-service/internal/utils"
	"github.com/prepstack/exam-service/internal/validator"
	"github.com/prepstack/exam-service/internal/workers"
	"github.com/prepstack/exam-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize event bus: Kafka when brokers are configured, otherwise
	// an in-process channel shared by publisher and scoring worker.
	publisher, subscriber, err := buildEventBus(cfg, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}

	// Initialize validator
	validator := validator.New()

	// Initialize services
	serviceManager, err := services.NewDefaultServiceManager(
		repoManager.GetRepository(), publisher, validator, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Start the scoring worker
	scoringWorker := workers.NewScoringWorker(subscriber, serviceManager.Scoring(), workers.Config{
		GracePeriod:        cfg.Scoring.GracePeriod,
		ReconcileInterval:  cfg.Scoring.ReconcileInterval,
		ReconcileBatchSize: cfg.Scoring.ReconcileBatchSize,
	}, slogLogger.With("component", "scoring_worker"))
	if err := scoringWorker.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start scoring worker: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, logger, cfg.Casdoor)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Setup middleware
	handlers.SetupMiddleware(router, logger)

	// Setup routes
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop the scoring worker before closing its upstream bus
	scoringWorker.Stop()

	// Shutdown services (closes the publisher)
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}

// buildEventBus wires the publisher and subscriber pair. With Kafka the
// two are independent connections; without it they share one GoChannel.
func buildEventBus(cfg *config.Config, logger *slog.Logger) (events.EventPublisher, message.Subscriber, error) {
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, nil, err
		}
		subscriber, err := events.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.Scoring.ConsumerGroup, logger)
		if err != nil {
			return nil, nil, err
		}
		return publisher, subscriber, nil
	}

	pubsub := events.NewGoChannelPubSub(logger)
	return events.NewWatermillPublisher(pubsub, logger), pubsub, nil
}
