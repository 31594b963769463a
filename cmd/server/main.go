package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/handler"
	"github.com/gymrank/internal/kafka"
	"github.com/gymrank/internal/media"
	"github.com/gymrank/internal/postgres"
	"github.com/gymrank/internal/ranking"
	"github.com/gymrank/internal/redis"
	"github.com/gymrank/internal/service"
	"github.com/gymrank/internal/websocket"
	"github.com/gymrank/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize the Redis ELO mirror. The server runs without it; the
	// legacy board then reads straight from PostgreSQL.
	var eloBoard *redis.EloBoard
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	eloBoard, err = redis.NewEloBoard(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("failed to connect to Redis, continuing without the elo mirror", "error", err)
		eloBoard = nil
	} else {
		defer eloBoard.Close()
		logger.Info("connected to Redis")
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize proof-video storage
	mediaStore, err := media.NewStore(&cfg.Media, logger)
	if err != nil {
		logger.Error("failed to initialize media storage", "error", err)
		os.Exit(1)
	}

	// Initialize the ranking engine and services
	var mirror ranking.EloMirror
	var workerMirror worker.Mirror
	if eloBoard != nil {
		mirror = eloBoard
		workerMirror = eloBoard
	}
	engine := ranking.NewEngine(repo, mirror, wsHub, &cfg.Leaderboard, logger)

	var mailer service.Mailer
	if cfg.Email.Enabled {
		mailer = service.NewResendMailer(&cfg.Email, logger)
		logger.Info("email sending enabled", "from", cfg.Email.From)
	}

	accountService := service.NewAccountService(repo, engine, mailer, &cfg.Auth, cfg.Email.BaseURL, logger)
	recordService := service.NewRecordService(repo, engine, mediaStore, logger)

	// Initialize the reconcile worker
	reconcileWorker := worker.NewReconcileWorker(repo, workerMirror, &cfg.Reconcile, logger)

	// Rebuild the Redis mirror from stored scores on startup (recovery)
	if eloBoard != nil {
		logger.Info("rebuilding elo mirror from database")
		if err := reconcileWorker.RebuildMirror(ctx); err != nil {
			logger.Warn("failed to rebuild elo mirror on startup", "error", err)
		}
	}

	// Start reconcile worker
	if cfg.Reconcile.Enabled {
		if err := reconcileWorker.Start(ctx); err != nil {
			logger.Error("failed to start reconcile worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for bulk PR ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, recordService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(accountService, recordService, engine, mediaStore, wsHub, cfg, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop reconcile worker
	if err := reconcileWorker.Stop(); err != nil {
		logger.Error("failed to stop reconcile worker", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
